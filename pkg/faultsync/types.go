package faultsync

import (
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/config"
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/engine"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Type aliases so embedders work with one import path.
type (
	Config        = config.Config
	Duration      = config.Duration
	ServiceConfig = config.ServiceConfig
	SourceConfig  = config.SourceConfig
	TargetConfig  = config.TargetConfig
	SyncConfig    = config.SyncConfig

	Sample    = domain.Sample
	Rule      = domain.Rule
	RuleSet   = domain.RuleSet
	Candidate = domain.FaultCandidate
	RateStats = domain.RateStats

	RunStats = engine.RunStats

	SampleSource    = ports.SampleSource
	CandidateSink   = ports.CandidateSink
	IncidentStore   = ports.IncidentStore
	CheckpointStore = ports.CheckpointStore
	ConditionStore  = ports.ConditionStore
	Observability   = ports.Observability
	Field           = ports.Field
)

// LoadConfig reads, defaults and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
