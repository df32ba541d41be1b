package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Condition is one of the six comparison operators of the rule
// language.
type Condition string

const (
	CondGT     Condition = "gt"
	CondLT     Condition = "lt"
	CondGTE    Condition = "gte"
	CondLTE    Condition = "lte"
	CondEquals Condition = "equals"
	CondNEQ    Condition = "neq"
)

func (c Condition) Valid() bool {
	switch c {
	case CondGT, CondLT, CondGTE, CondLTE, CondEquals, CondNEQ:
		return true
	}
	return false
}

// Scalar holds a YAML scalar (string, int, float or bool) as its
// textual form. Rule thresholds and prerequisite values come from
// config as either strings or numbers; comparisons are numeric-first
// anyway, so the canonical representation is the string.
type Scalar string

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar value, got %v", node.Tag)
	}
	*s = Scalar(node.Value)
	return nil
}

func (s Scalar) String() string { return string(s) }

// DurationMode selects between an instantaneous condition and one that
// must hold continuously for the full span.
type DurationMode string

const (
	ModeInstant    DurationMode = "instant"
	ModeContinuous DurationMode = "continuous"
)

// Duration is a sustain requirement like {value: "30m"} or the bare
// string "24h". Units: h, m, d.
type Duration struct {
	Value string       `yaml:"value"`
	Mode  DurationMode `yaml:"mode"`
}

// UnmarshalYAML accepts both the mapping form and the legacy bare
// string form used by master rules.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Value = node.Value
		d.Mode = ModeContinuous
		return nil
	}
	type plain Duration
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = Duration(p)
	if d.Mode == "" {
		d.Mode = ModeContinuous
	}
	return nil
}

// Instant reports whether this duration imposes no sustain
// requirement. A nil duration is instant.
func (d *Duration) Instant() bool {
	if d == nil {
		return true
	}
	return d.Mode == ModeInstant || d.Span() <= 0
}

// Span parses the duration value. Unparseable values degrade to zero,
// which the gate treats as instant.
func (d *Duration) Span() time.Duration {
	if d == nil || d.Value == "" {
		return 0
	}
	v := strings.TrimSpace(d.Value)
	if len(v) < 2 {
		return 0
	}
	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil || n < 0 {
		return 0
	}
	switch v[len(v)-1] {
	case 'h':
		return time.Duration(n) * time.Hour
	case 'm':
		return time.Duration(n) * time.Minute
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	}
	return 0
}

// Prerequisite is a secondary condition that must hold before the
// primary rule may fire. It resolves against a sibling field of the
// same row first, then against related points from the given table.
type Prerequisite struct {
	Tag       string    `yaml:"tag"`
	Value     Scalar    `yaml:"value"`
	Condition Condition `yaml:"condition"`
	Table     string    `yaml:"table"`
}

// Cond returns the prerequisite condition, defaulting to equals.
func (p *Prerequisite) Cond() Condition {
	if p.Condition == "" {
		return CondEquals
	}
	return p.Condition
}

// Rule is one entry of a named rule set. The same shape serves simple
// threshold rules, percentage rate rules (ThresholdPercent set) and
// master rules (Priority set); optional fields are validated once at
// config load.
type Rule struct {
	Tag              string        `yaml:"tag"`
	Condition        Condition     `yaml:"condition"`
	Value            Scalar        `yaml:"value"`
	Description      string        `yaml:"description"`
	AlarmType        string        `yaml:"alarm_type"`
	Enabled          *bool         `yaml:"enabled"`
	Table            string        `yaml:"table"`
	FaultType        string        `yaml:"fault_type"`
	ComplaintType    string        `yaml:"complaint_type"`
	Prerequisite     *Prerequisite `yaml:"prerequisite"`
	Duration         *Duration     `yaml:"duration"`
	ThresholdPercent *float64      `yaml:"threshold_percent"`
	WindowHours      int           `yaml:"window_hours"`
	Priority         int           `yaml:"priority"`
}

// IsEnabled defaults to true when the field is omitted.
func (r *Rule) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// IsRate reports whether the rule is evaluated by the percentage rate
// engine rather than the instantaneous matcher.
func (r *Rule) IsRate() bool { return r.ThresholdPercent != nil }

// RateThreshold returns the trigger percentage, defaulting to 80.
func (r *Rule) RateThreshold() float64 {
	if r.ThresholdPercent == nil || *r.ThresholdPercent <= 0 {
		return 80
	}
	return *r.ThresholdPercent
}

// Window returns the history window in hours, defaulting to 48.
func (r *Rule) Window() int {
	if r.WindowHours <= 0 {
		return 48
	}
	return r.WindowHours
}

// MasterPriority returns the arbitration tier, defaulting to 1
// (blocking).
func (r *Rule) MasterPriority() int {
	if r.Priority == 0 {
		return 1
	}
	return r.Priority
}

// RuleSet is a named, toggleable group of rules.
type RuleSet struct {
	Enabled     *bool  `yaml:"enabled"`
	Description string `yaml:"description"`
	Rules       []Rule `yaml:"rules"`
}

func (rs RuleSet) IsEnabled() bool { return rs.Enabled == nil || *rs.Enabled }

// Active returns the enabled rules of an enabled set, in declaration
// order.
func (rs RuleSet) Active() []Rule {
	if !rs.IsEnabled() {
		return nil
	}
	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.IsEnabled() {
			out = append(out, r)
		}
	}
	return out
}
