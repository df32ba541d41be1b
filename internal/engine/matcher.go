package engine

import (
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Context carries cross-signal lookup data for prerequisite
// resolution: samples from related tables observed in the same batch.
type Context struct {
	RelatedPoints []domain.Sample
}

// Matcher matches a single sample against a rule set.
type Matcher struct {
	tracker *Tracker
	obs     ports.Observability
}

func NewMatcher(tracker *Tracker, obs ports.Observability) *Matcher {
	return &Matcher{tracker: tracker, obs: obs}
}

// Match returns the first rule the sample satisfies, or nil. Candidate
// rules are those whose tag equals the sample's tag and whose source
// table is compatible with the sample's kind; they are tried in
// declaration order and the first to pass prerequisite, condition and
// duration checks wins.
func (m *Matcher) Match(s domain.Sample, rules []domain.Rule, ctx Context) *domain.Rule {
	for i := range rules {
		rule := &rules[i]
		if !rule.IsEnabled() || rule.Tag != s.Tag {
			continue
		}
		if rule.IsRate() {
			// Percentage rules belong to the rate evaluator.
			continue
		}
		if !domain.TableCompatible(rule.Table, s.Source) {
			continue
		}
		if rule.Prerequisite != nil && !prerequisiteHolds(s, rule.Prerequisite, ctx) {
			continue
		}

		key := domain.DebounceKey{UnitID: s.UnitID, Tag: rule.Tag, Value: rule.Value.String()}
		if !Evaluate(s.Value, rule.Condition, rule.Value.String()) {
			// Condition dropped; any in-progress sustain timer resets.
			if !rule.Duration.Instant() {
				m.tracker.Clear(key)
			}
			continue
		}
		if !m.tracker.Sustained(key, rule.Duration, s.EventTime) {
			m.obs.Debug("duration_not_reached",
				ports.Field{Key: "unit", Value: s.UnitID},
				ports.Field{Key: "tag", Value: rule.Tag})
			continue
		}
		return rule
	}
	return nil
}

// prerequisiteHolds resolves the prerequisite value and evaluates it.
// Resolution order: sibling field on the same row, then related points
// from the prerequisite's table. An unresolvable tag fails the
// prerequisite; it is not an error.
func prerequisiteHolds(s domain.Sample, p *domain.Prerequisite, ctx Context) bool {
	actual, ok := resolvePrerequisite(s, p, ctx)
	if !ok {
		return false
	}
	return Evaluate(actual, p.Cond(), p.Value.String())
}

func resolvePrerequisite(s domain.Sample, p *domain.Prerequisite, ctx Context) (string, bool) {
	if v, ok := s.Sibling(p.Tag); ok {
		return v, true
	}
	if p.Table == "" {
		return "", false
	}
	for _, rp := range ctx.RelatedPoints {
		if rp.Tag == p.Tag && domain.TableCompatible(p.Table, rp.Source) {
			return rp.Value, true
		}
	}
	return "", false
}
