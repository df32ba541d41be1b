package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// fakeObs records suppressions and counter bumps; logs are discarded.
type fakeObs struct {
	mu           sync.Mutex
	counters     map[string]float64
	suppressions []suppression
}

type suppression struct {
	candidate  domain.FaultCandidate
	incidentID string
	status     string
}

func newFakeObs() *fakeObs {
	return &fakeObs{counters: make(map[string]float64)}
}

func (f *fakeObs) Debug(string, ...ports.Field)        {}
func (f *fakeObs) Info(string, ...ports.Field)         {}
func (f *fakeObs) Warn(string, ...ports.Field)         {}
func (f *fakeObs) Error(string, error, ...ports.Field) {}

func (f *fakeObs) IncCounter(name string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[name] += v
}

func (f *fakeObs) ObserveLatency(string, float64) {}
func (f *fakeObs) SetGauge(string, float64)       {}

func (f *fakeObs) RecordSuppression(c domain.FaultCandidate, incidentID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressions = append(f.suppressions, suppression{c, incidentID, status})
}

// spyStore is an in-memory ConditionStore that counts every access so
// tests can assert instant rules never consult the tracker.
type spyStore struct {
	records map[domain.DebounceKey]time.Time
	tracks  int
	clears  int
	failing bool
}

func newSpyStore() *spyStore {
	return &spyStore{records: make(map[domain.DebounceKey]time.Time)}
}

func (s *spyStore) Track(key domain.DebounceKey, at time.Time) (time.Time, error) {
	s.tracks++
	if s.failing {
		return time.Time{}, errors.New("store unavailable")
	}
	if first, ok := s.records[key]; ok {
		return first, nil
	}
	s.records[key] = at
	return at, nil
}

func (s *spyStore) Clear(key domain.DebounceKey) error {
	s.clears++
	if s.failing {
		return errors.New("store unavailable")
	}
	delete(s.records, key)
	return nil
}

func (s *spyStore) Len() int { return len(s.records) }

func (s *spyStore) touched() int { return s.tracks + s.clears }

// fakeIncidents serves the dedup gate and records persisted
// candidates.
type fakeIncidents struct {
	latest    map[string]*ports.FaultRecord
	lookupErr error

	persisted  []domain.FaultCandidate
	persistErr error
	nextID     int
}

func newFakeIncidents() *fakeIncidents {
	return &fakeIncidents{latest: make(map[string]*ports.FaultRecord)}
}

func (f *fakeIncidents) LatestFault(_ context.Context, unitID, tag string) (*ports.FaultRecord, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.latest[unitID+"-"+tag], nil
}

func (f *fakeIncidents) Persist(_ context.Context, c domain.FaultCandidate) (string, error) {
	if f.persistErr != nil {
		return "", f.persistErr
	}
	f.persisted = append(f.persisted, c)
	f.nextID++
	return "KSC000" + string(rune('0'+f.nextID)), nil
}

func (f *fakeIncidents) Deliver(ctx context.Context, c domain.FaultCandidate) (string, error) {
	return f.Persist(ctx, c)
}

func (f *fakeIncidents) Name() string { return "fake" }

// fakeSource supplies canned history; Stream is unused by selector
// tests, which feed samples through Offer directly.
type fakeSource struct {
	history    []domain.Sample
	historyErr error
}

func (f *fakeSource) Stream(context.Context, time.Time, func(domain.Sample) error) error {
	return nil
}

func (f *fakeSource) FetchHistory(context.Context, string, int) ([]domain.Sample, error) {
	return f.history, f.historyErr
}

func (f *fakeSource) CommunicationFaults(context.Context) ([]domain.Sample, error) {
	return nil, nil
}

func (f *fakeSource) PowerFailures(context.Context) ([]domain.Sample, error) {
	return nil, nil
}

func boolPtr(b bool) *bool          { return &b }
func floatPtr(f float64) *float64   { return &f }
func at(min int) time.Time          { return time.Date(2026, 8, 28, 10, min, 0, 0, time.UTC) }
func cont(value string) *domain.Duration {
	return &domain.Duration{Value: value, Mode: domain.ModeContinuous}
}

func sample(unit, tag, value string, kind domain.SourceKind, t time.Time) domain.Sample {
	return domain.Sample{UnitID: unit, Tag: tag, Value: value, EventTime: t, Source: kind}
}
