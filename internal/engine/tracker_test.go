package engine

import (
	"testing"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

func TestObserveIdempotentOnFirstObservedAt(t *testing.T) {
	store := newSpyStore()
	tr := NewTracker(store, newFakeObs())
	key := domain.DebounceKey{UnitID: "101", Tag: "Tag8", Value: "0"}

	first := tr.Observe(key, at(0))
	again := tr.Observe(key, at(30))

	if !again.Equal(first) {
		t.Fatalf("second observe changed first-observed time: %v != %v", again, first)
	}
}

func TestClearThenObserveRestartsTimer(t *testing.T) {
	store := newSpyStore()
	tr := NewTracker(store, newFakeObs())
	key := domain.DebounceKey{UnitID: "101", Tag: "Tag8", Value: "0"}

	tr.Observe(key, at(0))
	tr.Clear(key)
	restarted := tr.Observe(key, at(30))

	if !restarted.Equal(at(30)) {
		t.Fatalf("expected timer restart at %v, got %v", at(30), restarted)
	}
}

func TestSustainedInstantNeverTouchesStore(t *testing.T) {
	store := newSpyStore()
	tr := NewTracker(store, newFakeObs())
	key := domain.DebounceKey{UnitID: "101", Tag: "Tag8", Value: "0"}

	if !tr.Sustained(key, nil, at(0)) {
		t.Fatal("nil duration must be sustained")
	}
	if !tr.Sustained(key, &domain.Duration{Value: "1h", Mode: domain.ModeInstant}, at(0)) {
		t.Fatal("instant mode must be sustained")
	}
	if !tr.Sustained(key, &domain.Duration{Value: "garbage"}, at(0)) {
		t.Fatal("unparseable duration degrades to instant")
	}
	if store.touched() != 0 {
		t.Fatalf("instant checks must not consult the store, saw %d accesses", store.touched())
	}
}

func TestSustainedContinuous(t *testing.T) {
	store := newSpyStore()
	tr := NewTracker(store, newFakeObs())
	key := domain.DebounceKey{UnitID: "101", Tag: "Tag8", Value: "0"}
	d := cont("30m")

	if tr.Sustained(key, d, at(0)) {
		t.Fatal("first observation cannot be sustained yet")
	}
	if tr.Sustained(key, d, at(15)) {
		t.Fatal("15m elapsed of 30m must not be sustained")
	}
	if !tr.Sustained(key, d, at(30)) {
		t.Fatal("exactly 30m elapsed must be sustained")
	}
}

func TestSustainedDegradesOnStoreFailure(t *testing.T) {
	store := newSpyStore()
	store.failing = true
	tr := NewTracker(store, newFakeObs())
	key := domain.DebounceKey{UnitID: "101", Tag: "Tag8", Value: "0"}

	// Best-effort default: condition treated as just observed.
	if tr.Sustained(key, cont("30m"), at(45)) {
		t.Fatal("store failure must degrade to not-yet-sustained")
	}
}

func TestDurationSpanUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"24h": 24 * time.Hour,
		"30m": 30 * time.Minute,
		"2d":  48 * time.Hour,
		"":    0,
		"x":   0,
		"5s":  0,
	}
	for value, want := range cases {
		d := &domain.Duration{Value: value}
		if got := d.Span(); got != want {
			t.Errorf("Span(%q) = %v, want %v", value, got, want)
		}
	}
}
