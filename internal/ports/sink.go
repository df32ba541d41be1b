package ports

import (
	"context"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

// CandidateSink receives winning, deduplicated fault candidates. The
// production sink persists complaints; dry-run and embedding callers
// supply their own.
type CandidateSink interface {
	Deliver(ctx context.Context, c domain.FaultCandidate) (string, error)
	Name() string
}
