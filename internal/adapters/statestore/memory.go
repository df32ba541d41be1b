package statestore

import (
	"sync"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// MemoryStore tracks condition timers without durability. Sustain
// timers restart on every process start, so it suits dry runs and
// tests, not production debouncing.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]time.Time)}
}

func (s *MemoryStore) Track(key domain.DebounceKey, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	if first, ok := s.records[k]; ok {
		return first, nil
	}
	s.records[k] = at
	return at, nil
}

func (s *MemoryStore) Clear(key domain.DebounceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key.String())
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ ports.ConditionStore = (*MemoryStore)(nil)
