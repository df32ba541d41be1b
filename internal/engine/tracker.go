package engine

import (
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Tracker gates rules on sustained conditions. It wraps the durable
// ConditionStore so debounce timers survive process restarts; the
// store itself is injected to keep the lifetime explicit.
type Tracker struct {
	store ports.ConditionStore
	obs   ports.Observability
}

func NewTracker(store ports.ConditionStore, obs ports.Observability) *Tracker {
	return &Tracker{store: store, obs: obs}
}

// Observe records at as the first observed time for key if the key is
// new and returns the first observed time either way. A store failure
// is logged and degrades to "just observed", so the condition is
// treated as not yet sustained rather than aborting the run.
func (t *Tracker) Observe(key domain.DebounceKey, at time.Time) time.Time {
	first, err := t.store.Track(key, at)
	if err != nil {
		t.obs.Error("debounce_track_failed", err, ports.Field{Key: "key", Value: key.String()})
		t.obs.IncCounter("faultsync_state_errors_total", 1)
		return at
	}
	t.obs.SetGauge("faultsync_debounce_keys", float64(t.store.Len()))
	return first
}

// Clear resets the sustain timer for key. The condition was observed
// false, so the store self-heals without any TTL.
func (t *Tracker) Clear(key domain.DebounceKey) {
	if err := t.store.Clear(key); err != nil {
		t.obs.Error("debounce_clear_failed", err, ports.Field{Key: "key", Value: key.String()})
		t.obs.IncCounter("faultsync_state_errors_total", 1)
		return
	}
	t.obs.SetGauge("faultsync_debounce_keys", float64(t.store.Len()))
}

// Sustained reports whether the condition behind key has held for the
// rule's duration as of at. Instant durations return true without
// touching the store.
func (t *Tracker) Sustained(key domain.DebounceKey, d *domain.Duration, at time.Time) bool {
	if d.Instant() {
		return true
	}
	first := t.Observe(key, at)
	return at.Sub(first) >= d.Span()
}
