package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// FileStore keeps first-observed timestamps for debounced conditions in
// a JSON snapshot on disk. Every mutation rewrites the snapshot through
// a temp file and rename, so a crash mid-write leaves the previous
// snapshot intact and sustain timers survive restarts.
type FileStore struct {
	mu      sync.Mutex
	path    string
	tmpPath string
	records map[string]time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "fault_state.json")

	s := &FileStore{
		path:    path,
		tmpPath: path + ".tmp",
		records: make(map[string]time.Time),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	raw := make(map[string]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("state snapshot parse: %w", err)
	}
	for key, stamp := range raw {
		t, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			// A single bad entry drops that timer, not the snapshot.
			continue
		}
		s.records[key] = t
	}
	return nil
}

func (s *FileStore) Track(key domain.DebounceKey, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if first, ok := s.records[k]; ok {
		return first, nil
	}
	s.records[k] = at
	if err := s.persistLocked(); err != nil {
		delete(s.records, k)
		return time.Time{}, err
	}
	return at, nil
}

func (s *FileStore) Clear(key domain.DebounceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if _, ok := s.records[k]; !ok {
		return nil
	}
	delete(s.records, k)
	return s.persistLocked()
}

func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *FileStore) persistLocked() error {
	raw := make(map[string]string, len(s.records))
	for key, t := range s.records {
		raw[key] = t.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(s.tmpPath, s.path)
}

var _ ports.ConditionStore = (*FileStore)(nil)
