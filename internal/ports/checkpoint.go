package ports

import (
	"context"
	"time"
)

// CheckpointStore persists the last successfully processed event time
// per run key. Implementations clamp future-dated positions on write;
// the runner clamps again on read before trusting a stored value.
type CheckpointStore interface {
	LastProcessed(ctx context.Context, key string) (time.Time, bool, error)
	SetLastProcessed(ctx context.Context, key string, t time.Time) error
}
