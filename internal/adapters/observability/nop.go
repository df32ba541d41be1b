package observability

import (
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Nop returns an Observability that discards everything.
func Nop() ports.Observability { return nop{} }

type nop struct{}

func (nop) Debug(string, ...ports.Field)                        {}
func (nop) Info(string, ...ports.Field)                         {}
func (nop) Warn(string, ...ports.Field)                         {}
func (nop) Error(string, error, ...ports.Field)                 {}
func (nop) IncCounter(string, float64)                          {}
func (nop) ObserveLatency(string, float64)                      {}
func (nop) SetGauge(string, float64)                            {}
func (nop) RecordSuppression(domain.FaultCandidate, string, string) {}
