package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/incidents"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/opcua"
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s", "10m" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Service ServiceConfig     `yaml:"service"`
	Source  SourceConfig      `yaml:"source"`
	Target  TargetConfig      `yaml:"target"`
	State   StateConfig       `yaml:"state"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Sync    SyncConfig        `yaml:"sync"`
	Mapping incidents.Mapping `yaml:"mapping"`
	OPCUA   opcua.Config      `yaml:"opcua"`
}

type ServiceConfig struct {
	ClientID        string   `yaml:"client_id"`
	Schedule        string   `yaml:"schedule"`
	RunOnStart      bool     `yaml:"run_on_start"`
	DryRun          bool     `yaml:"dry_run"`
	SystemUserEmail string   `yaml:"system_user_email"`
	LeaseTTL        Duration `yaml:"lease_ttl"`
}

// SourceConfig binds the telemetry database and its schema names.
type SourceConfig struct {
	ConnString    string   `yaml:"conn_string"`
	DigitalTable  string   `yaml:"digital_table"`
	AnalogTable   string   `yaml:"analog_table"`
	UnitColumn    string   `yaml:"unit_column"`
	TimeColumn    string   `yaml:"time_column"`
	CommTag       string   `yaml:"comm_tag"`
	PowerTag      string   `yaml:"power_tag"`
	StaleAfter    Duration `yaml:"stale_after"`
	PowerLookback Duration `yaml:"power_lookback"`
	AbandonAfter  Duration `yaml:"abandon_after"`
	AnalogSilence Duration `yaml:"analog_silence"`
}

// TargetConfig binds the grievance database incidents are written to.
type TargetConfig struct {
	ConnString string `yaml:"conn_string"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SyncConfig carries the rule sets and the incremental window.
type SyncConfig struct {
	LookbackHours  int            `yaml:"lookback_hours"`
	ClosedStatuses []string       `yaml:"closed_statuses"`
	DIRules        domain.RuleSet `yaml:"di_rules"`
	AIRules        domain.RuleSet `yaml:"ai_rules"`
	MasterRules    []domain.Rule  `yaml:"master_rules"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.ClientID == "" {
		c.Service.ClientID = "default"
	}
	if c.Service.Schedule == "" {
		c.Service.Schedule = "*/5 * * * *"
	}
	if c.Service.LeaseTTL <= 0 {
		c.Service.LeaseTTL = Duration(10 * time.Minute)
	}
	if c.Sync.LookbackHours <= 0 {
		c.Sync.LookbackHours = 24
	}
	if c.State.Dir == "" {
		c.State.Dir = "./data/state"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if len(c.OPCUA.Nodes) > 0 {
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if c.Source.ConnString == "" {
		return fmt.Errorf("source.conn_string is required")
	}
	if c.Target.ConnString == "" && !c.Service.DryRun {
		return fmt.Errorf("target.conn_string is required unless service.dry_run is set")
	}
	if !c.Service.DryRun && c.Service.SystemUserEmail == "" {
		return fmt.Errorf("service.system_user_email is required unless service.dry_run is set")
	}

	for i, r := range c.Sync.DIRules.Rules {
		if err := validateRule(r, false); err != nil {
			return fmt.Errorf("sync.di_rules[%d]: %w", i, err)
		}
	}
	for i, r := range c.Sync.AIRules.Rules {
		if err := validateRule(r, false); err != nil {
			return fmt.Errorf("sync.ai_rules[%d]: %w", i, err)
		}
	}
	for i, r := range c.Sync.MasterRules {
		if err := validateRule(r, true); err != nil {
			return fmt.Errorf("sync.master_rules[%d]: %w", i, err)
		}
	}

	if len(c.OPCUA.Nodes) > 0 {
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	}
	return nil
}

// validateRule rejects the variants the engine cannot evaluate instead
// of letting them silently never fire. Master rules match on literal
// value equality and need no condition.
func validateRule(r domain.Rule, master bool) error {
	if r.Tag == "" {
		return fmt.Errorf("tag is required")
	}
	if r.Value == "" {
		return fmt.Errorf("value is required")
	}
	if !master && !r.Condition.Valid() {
		return fmt.Errorf("condition %q is not one of gt/lt/gte/lte/equals/neq", r.Condition)
	}
	if master && r.IsRate() {
		return fmt.Errorf("master rules cannot set threshold_percent")
	}
	if r.ThresholdPercent != nil && (*r.ThresholdPercent < 0 || *r.ThresholdPercent > 100) {
		return fmt.Errorf("threshold_percent %v out of range", *r.ThresholdPercent)
	}
	if r.Table != "" && r.Table != domain.TableDigital && r.Table != domain.TableAnalog {
		return fmt.Errorf("table %q is not %s or %s", r.Table, domain.TableDigital, domain.TableAnalog)
	}
	if p := r.Prerequisite; p != nil {
		if p.Tag == "" {
			return fmt.Errorf("prerequisite.tag is required")
		}
		if p.Condition != "" && !p.Condition.Valid() {
			return fmt.Errorf("prerequisite.condition %q invalid", p.Condition)
		}
		if p.Table != "" && p.Table != domain.TableDigital && p.Table != domain.TableAnalog {
			return fmt.Errorf("prerequisite.table %q invalid", p.Table)
		}
	}
	if d := r.Duration; d != nil && d.Value != "" && d.Span() <= 0 && d.Mode != domain.ModeInstant {
		return fmt.Errorf("duration %q does not parse (units: h, m, d)", d.Value)
	}
	return nil
}

// CheckpointKey is the system_config row the incremental position is
// stored under.
func (c *Config) CheckpointKey() string {
	return "LAST_SYNC_TIME_" + c.Service.ClientID
}

// DigitalTags returns the digital-table columns the loaded rules read,
// deduplicated in first-use order.
func (c *Config) DigitalTags() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, r := range c.Sync.DIRules.Active() {
		add(r.Tag)
		if r.Prerequisite != nil && r.Prerequisite.Table != domain.TableAnalog {
			add(r.Prerequisite.Tag)
		}
	}
	for _, r := range c.Sync.MasterRules {
		if r.IsEnabled() && r.Table != domain.TableAnalog {
			add(r.Tag)
		}
	}
	return out
}

// AnalogTags returns the analog-table columns the loaded rules read.
func (c *Config) AnalogTags() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, r := range c.Sync.AIRules.Active() {
		add(r.Tag)
		if r.Prerequisite != nil && r.Prerequisite.Table != domain.TableDigital {
			add(r.Prerequisite.Tag)
		}
	}
	for _, r := range c.Sync.DIRules.Active() {
		if r.Prerequisite != nil && r.Prerequisite.Table != domain.TableDigital {
			add(r.Prerequisite.Tag)
		}
	}
	for _, r := range c.Sync.MasterRules {
		if r.IsEnabled() && r.Table == domain.TableAnalog {
			add(r.Tag)
		}
	}
	return out
}
