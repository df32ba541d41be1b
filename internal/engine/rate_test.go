package engine

import (
	"math"
	"testing"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

func newRateEvaluator(store *spyStore, now time.Time) *RateEvaluator {
	return NewRateEvaluator(NewTracker(store, newFakeObs()), newFakeObs(), func() time.Time { return now })
}

func rateRule(tag string, percent float64) domain.Rule {
	return domain.Rule{
		Tag:              tag,
		Condition:        domain.CondEquals,
		Value:            "0",
		Description:      "Lamp failure rate",
		ThresholdPercent: floatPtr(percent),
	}
}

// history builds n records for tag within the window, the first f of
// which match value "0".
func rateHistory(tag string, n, f int, base time.Time) []domain.Sample {
	out := make([]domain.Sample, 0, n)
	for i := 0; i < n; i++ {
		v := "1"
		if i < f {
			v = "0"
		}
		out = append(out, domain.Sample{
			UnitID:    "101",
			Tag:       tag,
			Value:     v,
			EventTime: base.Add(time.Duration(i) * time.Minute),
			Source:    domain.SourceDigital,
		})
	}
	return out
}

func TestRateExactPercent(t *testing.T) {
	now := at(0)
	cases := []struct {
		n, f    int
		percent float64
		display string
	}{
		{32, 8, 25, "25.00"},
		{3, 2, 200.0 / 3.0, "66.67"},
		{10, 10, 100, "100.00"},
	}
	for _, tc := range cases {
		e := newRateEvaluator(newSpyStore(), now)
		rule := rateRule("Tag26", 10)
		s := sample("101", "Tag26", "0", domain.SourceDigital, now)

		got := e.Evaluate(s, rateHistory("Tag26", tc.n, tc.f, now.Add(-time.Hour)), []domain.Rule{rule}, Context{})
		if got == nil {
			t.Fatalf("n=%d f=%d: expected a candidate", tc.n, tc.f)
		}
		if math.Abs(got.Stats.Percent-tc.percent) > 1e-9 {
			t.Fatalf("n=%d f=%d: percent = %v, want %v exactly", tc.n, tc.f, got.Stats.Percent, tc.percent)
		}
		if got.Stats.DisplayPercent() != tc.display {
			t.Fatalf("display percent = %s, want %s", got.Stats.DisplayPercent(), tc.display)
		}
		if got.Stats.MatchCount != tc.f || got.Stats.SampleCount != tc.n {
			t.Fatalf("stats = %+v, want %d/%d", got.Stats, tc.f, tc.n)
		}
	}
}

func TestRateDefaultThresholdIs80(t *testing.T) {
	now := at(0)
	rule := rateRule("Tag26", 0) // zero-valued threshold falls back to 80
	s := sample("101", "Tag26", "0", domain.SourceDigital, now)

	e := newRateEvaluator(newSpyStore(), now)
	if got := e.Evaluate(s, rateHistory("Tag26", 10, 7, now.Add(-time.Hour)), []domain.Rule{rule}, Context{}); got != nil {
		t.Fatal("70% must not trigger the default 80% threshold")
	}
	if got := e.Evaluate(s, rateHistory("Tag26", 10, 8, now.Add(-time.Hour)), []domain.Rule{rule}, Context{}); got == nil {
		t.Fatal("80% must trigger the default threshold")
	}
}

func TestRateWindowFiltersOldRecords(t *testing.T) {
	now := at(0)
	rule := rateRule("Tag26", 50)
	rule.WindowHours = 48
	s := sample("101", "Tag26", "0", domain.SourceDigital, now)

	// All matching records sit outside the 48h window.
	stale := rateHistory("Tag26", 5, 5, now.Add(-72*time.Hour))
	e := newRateEvaluator(newSpyStore(), now)
	if got := e.Evaluate(s, stale, []domain.Rule{rule}, Context{}); got != nil {
		t.Fatal("records outside the window must not count")
	}
}

func TestRateNoHistoryNoResult(t *testing.T) {
	e := newRateEvaluator(newSpyStore(), at(0))
	s := sample("101", "Tag26", "0", domain.SourceDigital, at(0))
	if got := e.Evaluate(s, nil, []domain.Rule{rateRule("Tag26", 50)}, Context{}); got != nil {
		t.Fatal("zero in-window samples must yield no result")
	}
}

func TestRateIgnoresRecordsWithoutTheTag(t *testing.T) {
	now := at(0)
	rule := rateRule("Tag26", 50)
	s := sample("101", "Tag26", "0", domain.SourceDigital, now)

	history := rateHistory("Tag26", 4, 4, now.Add(-time.Hour))
	history = append(history, sample("101", "Tag9", "0", domain.SourceDigital, now.Add(-time.Hour)))

	e := newRateEvaluator(newSpyStore(), now)
	got := e.Evaluate(s, history, []domain.Rule{rule}, Context{})
	if got == nil {
		t.Fatal("expected a candidate")
	}
	if got.Stats.SampleCount != 4 {
		t.Fatalf("records lacking the tag must not count: sample count %d", got.Stats.SampleCount)
	}
}

func TestRateDurationGatesOnInstantaneousCondition(t *testing.T) {
	now := at(60)
	rule := rateRule("Tag26", 50)
	rule.Duration = cont("30m")
	store := newSpyStore()
	e := newRateEvaluator(store, now)
	history := rateHistory("Tag26", 4, 4, now.Add(-time.Hour))

	first := sample("101", "Tag26", "0", domain.SourceDigital, at(0))
	if got := e.Evaluate(first, history, []domain.Rule{rule}, Context{}); got != nil {
		t.Fatal("percentage met but sustain timer just started")
	}
	later := sample("101", "Tag26", "0", domain.SourceDigital, at(30))
	if got := e.Evaluate(later, history, []domain.Rule{rule}, Context{}); got == nil {
		t.Fatal("sustain timer satisfied, candidate expected")
	}
}

func TestRatePrerequisiteMissingSkips(t *testing.T) {
	now := at(0)
	rule := rateRule("Tag26", 50)
	rule.Prerequisite = &domain.Prerequisite{Tag: "Tag6", Value: "1"}
	s := sample("101", "Tag26", "0", domain.SourceDigital, now)

	e := newRateEvaluator(newSpyStore(), now)
	if got := e.Evaluate(s, rateHistory("Tag26", 4, 4, now.Add(-time.Hour)), []domain.Rule{rule}, Context{}); got != nil {
		t.Fatal("missing prerequisite tag must skip the rule")
	}
}
