package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// PostgresStore keeps the incremental sync position in the shared
// system_config table, one row per checkpoint key. Future-dated
// positions are clamped on write; the runner clamps again on read in
// case another writer slipped one in.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) LastProcessed(ctx context.Context, key string) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_config WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("checkpoint read: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("checkpoint parse %q: %w", value, err)
	}
	return t, true, nil
}

func (s *PostgresStore) SetLastProcessed(ctx context.Context, key string, t time.Time) error {
	// A source row stamped ahead of the wall clock must not push the
	// stream position into the future, or the next run skips real rows.
	if now := s.now(); t.After(now) {
		t = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_config (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, t.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("checkpoint write: %w", err)
	}
	return nil
}

var _ ports.CheckpointStore = (*PostgresStore)(nil)
