package domain

import (
	"fmt"
	"time"
)

// DebounceKey identifies one tracked condition. Different threshold
// values for the same tag are tracked independently.
type DebounceKey struct {
	UnitID string
	Tag    string
	Value  string
}

func (k DebounceKey) String() string {
	return k.UnitID + "-" + k.Tag + "-" + k.Value
}

// RateStats carries the window statistics a percentage rule was
// triggered with.
type RateStats struct {
	MatchCount  int
	SampleCount int
	Percent     float64
}

// DisplayPercent renders the exact percentage with two decimals for
// logs and complaint templates.
func (s RateStats) DisplayPercent() string {
	return fmt.Sprintf("%.2f", s.Percent)
}

// FaultCandidate is the unit of work handed past the engine boundary:
// a winning (unit, tag, rule) match awaiting deduplication and
// persistence.
type FaultCandidate struct {
	UnitID    string
	Tag       string
	Value     string
	EventTime time.Time
	Rule      Rule
	Stats     *RateStats
}

// Key is the per-run idempotency key: at most one persistence attempt
// happens per (unit, tag) per run.
func (c FaultCandidate) Key() string {
	return c.UnitID + "-" + c.Tag
}
