package faultsync

import (
	"context"

	base "github.com/TheBunny221/sync-service-urban-voice/pkg/faultsync"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import
// github.com/TheBunny221/sync-service-urban-voice directly.
type (
	Config        = base.Config
	Duration      = base.Duration
	ServiceConfig = base.ServiceConfig
	SourceConfig  = base.SourceConfig
	TargetConfig  = base.TargetConfig
	SyncConfig    = base.SyncConfig

	Sample    = base.Sample
	Rule      = base.Rule
	RuleSet   = base.RuleSet
	Candidate = base.Candidate
	RateStats = base.RateStats
	RunStats  = base.RunStats

	Service = base.Service
	Option  = base.Option

	SampleSource    = base.SampleSource
	CandidateSink   = base.CandidateSink
	IncidentStore   = base.IncidentStore
	CheckpointStore = base.CheckpointStore
	ConditionStore  = base.ConditionStore
	Observability   = base.Observability
	Field           = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Service construction and options.
func NewService(cfg *Config, opts ...Option) (*Service, error) {
	return base.NewService(cfg, opts...)
}

func WithSource(s SampleSource) Option {
	return base.WithSource(s)
}

func WithSink(s CandidateSink) Option {
	return base.WithSink(s)
}

func WithIncidentStore(s IncidentStore) Option {
	return base.WithIncidentStore(s)
}

func WithCheckpointStore(s CheckpointStore) Option {
	return base.WithCheckpointStore(s)
}

func WithConditionStore(s ConditionStore) Option {
	return base.WithConditionStore(s)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn func(ctx context.Context, c Candidate) (string, error)) CandidateSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (CandidateSink, <-chan Candidate, func()) {
	return base.NewChannelSink(name, buffer)
}
