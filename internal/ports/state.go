package ports

import (
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

// ConditionStore is the durable key → first-observed-time state behind
// the debounce tracker. Every mutation is flushed before the call
// returns; the store outlives any single run.
type ConditionStore interface {
	// Track records at as the first observed time for key if the key
	// is new, and returns the recorded first observed time either way.
	Track(key domain.DebounceKey, at time.Time) (time.Time, error)

	// Clear removes the record for key. Idempotent.
	Clear(key domain.DebounceKey) error

	// Len reports the number of tracked conditions.
	Len() int
}
