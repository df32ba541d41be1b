package ports

import (
	"context"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

// SampleSource supplies telemetry to the engine. Stream yields samples
// ordered by (unit, event time) ascending and calls fn synchronously
// for each one, so the consumer's evaluation naturally backpressures
// row delivery. Returning an error from fn aborts the stream.
type SampleSource interface {
	Stream(ctx context.Context, since time.Time, fn func(domain.Sample) error) error

	// FetchHistory returns prior samples for one unit within the
	// window, newest last. Used by the percentage rate evaluator.
	FetchHistory(ctx context.Context, unitID string, windowHours int) ([]domain.Sample, error)

	// CommunicationFaults derives COMPUTED_STATE samples from
	// staleness heuristics over the digital table.
	CommunicationFaults(ctx context.Context) ([]domain.Sample, error)

	// PowerFailures derives COMPUTED_STATE samples from the power
	// tag within a short lookback.
	PowerFailures(ctx context.Context) ([]domain.Sample, error)
}
