package engine

import (
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// RateEvaluator triggers rules on fault frequency over a historical
// window instead of a single observation.
type RateEvaluator struct {
	tracker *Tracker
	obs     ports.Observability
	now     func() time.Time
}

func NewRateEvaluator(tracker *Tracker, obs ports.Observability, now func() time.Time) *RateEvaluator {
	if now == nil {
		now = time.Now
	}
	return &RateEvaluator{tracker: tracker, obs: obs, now: now}
}

// Evaluate checks the sample's tag against every rate rule
// (threshold_percent set) for that tag and returns a candidate carrying
// the window statistics, or nil. The percentage is computed exactly;
// rounding happens only at display time.
func (e *RateEvaluator) Evaluate(s domain.Sample, history []domain.Sample, rules []domain.Rule, ctx Context) *domain.FaultCandidate {
	for i := range rules {
		rule := &rules[i]
		if !rule.IsEnabled() || !rule.IsRate() || rule.Tag != s.Tag {
			continue
		}
		if rule.Prerequisite != nil && !prerequisiteHolds(s, rule.Prerequisite, ctx) {
			e.obs.Debug("rate_prerequisite_skip",
				ports.Field{Key: "unit", Value: s.UnitID},
				ports.Field{Key: "rule", Value: rule.Description})
			continue
		}

		cutoff := e.now().Add(-time.Duration(rule.Window()) * time.Hour)

		var matches, total int
		for _, h := range history {
			if h.EventTime.Before(cutoff) {
				continue
			}
			v, ok := historyValue(h, rule.Tag)
			if !ok {
				continue
			}
			total++
			if Evaluate(v, rule.Condition, rule.Value.String()) {
				matches++
			}
		}
		if total == 0 {
			continue
		}

		percent := float64(matches) * 100 / float64(total)
		stats := domain.RateStats{MatchCount: matches, SampleCount: total, Percent: percent}

		if percent < rule.RateThreshold() {
			e.obs.Debug("rate_below_threshold",
				ports.Field{Key: "unit", Value: s.UnitID},
				ports.Field{Key: "tag", Value: rule.Tag},
				ports.Field{Key: "percent", Value: stats.DisplayPercent()})
			continue
		}

		// The sustain timer gates on the instantaneous condition, not
		// on how long the percentage has been over threshold.
		key := domain.DebounceKey{UnitID: s.UnitID, Tag: rule.Tag, Value: rule.Value.String()}
		if !e.tracker.Sustained(key, rule.Duration, s.EventTime) {
			e.obs.Debug("rate_duration_not_reached",
				ports.Field{Key: "unit", Value: s.UnitID},
				ports.Field{Key: "tag", Value: rule.Tag},
				ports.Field{Key: "percent", Value: stats.DisplayPercent()})
			continue
		}

		return &domain.FaultCandidate{
			UnitID:    s.UnitID,
			Tag:       s.Tag,
			Value:     s.Value,
			EventTime: s.EventTime,
			Rule:      *rule,
			Stats:     &stats,
		}
	}
	return nil
}

// historyValue extracts the rule's tag from one history record: either
// the record is a sample of that tag, or the record's raw row carries
// it as a sibling column.
func historyValue(h domain.Sample, tag string) (string, bool) {
	if h.Tag == tag {
		return h.Value, true
	}
	return h.Sibling(tag)
}
