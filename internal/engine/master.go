package engine

import (
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// MasterMatch pairs a master rule with the sample that satisfied it.
type MasterMatch struct {
	Rule   domain.Rule
	Sample domain.Sample
}

// ArbitrationResult classifies master rule outcomes for one unit.
// A Blocking match suppresses all ordinary rule evaluation for the
// unit; Collected matches suppress ordinary evaluation but remain
// eligible as fault candidates themselves.
type ArbitrationResult struct {
	Blocking  *MasterMatch
	Collected []MasterMatch
}

// Arbiter evaluates the small high-priority rule set once per unit per
// batch.
type Arbiter struct {
	tracker *Tracker
	obs     ports.Observability
}

func NewArbiter(tracker *Tracker, obs ports.Observability) *Arbiter {
	return &Arbiter{tracker: tracker, obs: obs}
}

// Arbitrate scans the master rules against the unit's buffered
// samples. The first priority-1 rule that qualifies short-circuits the
// scan and is returned alone; lower tiers are collected. A rule with
// no matching sample has its sustain timer cleared.
func (a *Arbiter) Arbitrate(unitID string, samples []domain.Sample, rules []domain.Rule) ArbitrationResult {
	var collected []MasterMatch

	for i := range rules {
		rule := &rules[i]
		if !rule.IsEnabled() {
			continue
		}

		key := domain.DebounceKey{UnitID: unitID, Tag: rule.Tag, Value: rule.Value.String()}

		match := findMasterSample(samples, rule)
		if match == nil {
			// Condition not active for this unit; reset tracking.
			a.tracker.Clear(key)
			continue
		}

		if !a.tracker.Sustained(key, rule.Duration, match.EventTime) {
			continue
		}

		if rule.MasterPriority() == 1 {
			a.obs.Warn("master_override",
				ports.Field{Key: "unit", Value: unitID},
				ports.Field{Key: "rule", Value: rule.Description})
			return ArbitrationResult{Blocking: &MasterMatch{Rule: *rule, Sample: *match}}
		}
		collected = append(collected, MasterMatch{Rule: *rule, Sample: *match})
	}

	return ArbitrationResult{Collected: collected}
}

// findMasterSample returns the first sample satisfying the rule's
// tag and value equality with a compatible source table.
func findMasterSample(samples []domain.Sample, rule *domain.Rule) *domain.Sample {
	for i := range samples {
		s := &samples[i]
		if !domain.TableCompatible(rule.Table, s.Source) {
			continue
		}
		if s.Tag == rule.Tag && s.Value == rule.Value.String() {
			return s
		}
	}
	return nil
}
