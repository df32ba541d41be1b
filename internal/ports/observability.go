package ports

import "github.com/TheBunny221/sync-service-urban-voice/internal/domain"

// Observability bundles the logging and metrics surface the engine
// emits into.
type Observability interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)
	SetGauge(name string, v float64)

	// RecordSuppression logs a duplicate candidate together with the
	// existing incident's id and status for audit.
	RecordSuppression(c domain.FaultCandidate, incidentID, status string)
}

type Field struct {
	Key   string
	Value any
}
