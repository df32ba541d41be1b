package ports

import "github.com/TheBunny221/sync-service-urban-voice/internal/domain"

// Collector is a push-style live telemetry source (OPC UA, simulators).
type Collector interface {
	Start(out chan<- domain.Sample) error
	Stop() error
}
