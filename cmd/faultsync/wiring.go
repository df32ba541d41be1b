package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/checkpoint"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/incidents"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/source"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/statestore"
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/config"
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/runner"
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/engine"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func ruleSets(cfg *config.Config) engine.Rules {
	var masters []domain.Rule
	for _, r := range cfg.Sync.MasterRules {
		if r.IsEnabled() {
			masters = append(masters, r)
		}
	}
	return engine.Rules{
		Digital: cfg.Sync.DIRules.Active(),
		Analog:  cfg.Sync.AIRules.Active(),
		Master:  masters,
	}
}

// buildRunner wires the adapters behind one Runner. The returned
// cleanup closes the database handles.
func buildRunner(cfg *config.Config, obs ports.Observability) (*runner.Runner, func(), error) {
	srcDB, err := sql.Open("postgres", cfg.Source.ConnString)
	if err != nil {
		return nil, nil, fmt.Errorf("open source db: %w", err)
	}
	cleanup := func() { srcDB.Close() }

	src := source.NewPostgresSource(srcDB, source.Config{
		DigitalTable:  cfg.Source.DigitalTable,
		AnalogTable:   cfg.Source.AnalogTable,
		UnitColumn:    cfg.Source.UnitColumn,
		TimeColumn:    cfg.Source.TimeColumn,
		DigitalTags:   cfg.DigitalTags(),
		AnalogTags:    cfg.AnalogTags(),
		CommTag:       cfg.Source.CommTag,
		PowerTag:      cfg.Source.PowerTag,
		StaleAfter:    cfg.Source.StaleAfter.Std(),
		PowerLookback: cfg.Source.PowerLookback.Std(),
		AbandonAfter:  cfg.Source.AbandonAfter.Std(),
		AnalogSilence: cfg.Source.AnalogSilence.Std(),
	})

	conditions, err := statestore.NewFileStore(cfg.State.Dir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	var (
		incidentStore ports.IncidentStore
		sink          ports.CandidateSink
		checkpoints   ports.CheckpointStore
	)
	if cfg.Service.DryRun {
		incidentStore = nopIncidents{}
		sink = logSink{obs: obs}
		checkpoints = checkpoint.NewPostgresStore(srcDB)
	} else {
		tgtDB, err := sql.Open("postgres", cfg.Target.ConnString)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open target db: %w", err)
		}
		prev := cleanup
		cleanup = func() { tgtDB.Close(); prev() }

		store := incidents.NewPostgresStore(tgtDB, incidents.NewMapper(cfg.Mapping), cfg.Service.SystemUserEmail)
		incidentStore = store
		sink = store
		checkpoints = checkpoint.NewPostgresStore(tgtDB)
	}

	r := runner.New(src, checkpoints, conditions, incidentStore, sink, ruleSets(cfg), obs, runner.Options{
		CheckpointKey:  cfg.CheckpointKey(),
		LookbackHours:  cfg.Sync.LookbackHours,
		LeaseTTL:       cfg.Service.LeaseTTL.Std(),
		ClosedStatuses: cfg.Sync.ClosedStatuses,
	})
	return r, cleanup, nil
}

// nopIncidents serves the dedup gate when there is no grievance
// database to consult. Nothing is ever a duplicate.
type nopIncidents struct{}

func (nopIncidents) LatestFault(context.Context, string, string) (*ports.FaultRecord, error) {
	return nil, nil
}

func (nopIncidents) Persist(context.Context, domain.FaultCandidate) (string, error) {
	return "", nil
}

// logSink reports what would have been registered without touching the
// grievance database.
type logSink struct {
	obs ports.Observability
}

func (s logSink) Deliver(_ context.Context, c domain.FaultCandidate) (string, error) {
	fields := []ports.Field{
		{Key: "unit", Value: c.UnitID},
		{Key: "tag", Value: c.Tag},
		{Key: "value", Value: c.Value},
		{Key: "rule", Value: c.Rule.Description},
		{Key: "time", Value: c.EventTime.Format(time.RFC3339)},
	}
	if c.Stats != nil {
		fields = append(fields, ports.Field{Key: "percent", Value: c.Stats.DisplayPercent()})
	}
	s.obs.Info("dry_run_candidate", fields...)
	return "DRY-RUN", nil
}

func (s logSink) Name() string { return "dry-run" }
