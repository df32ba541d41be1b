package faultsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/checkpoint"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/incidents"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/observability"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/source"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/statestore"
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/runner"
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/engine"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Service is the embeddable form of the faultsync daemon: the same
// wiring the CLI performs, behind a Go API. Every collaborator can be
// overridden with an Option; anything not overridden is built from the
// configuration the way the CLI builds it.
type Service struct {
	cfg    *Config
	runner *runner.Runner
	obs    ports.Observability

	// registry is non-nil only when the service built its own
	// observability and therefore owns the metrics endpoint.
	registry *prometheus.Registry

	mu      sync.Mutex
	started bool
	cleanup []func()
}

// Option overrides one collaborator of a Service under construction.
type Option func(*overrides)

type overrides struct {
	source      ports.SampleSource
	sink        ports.CandidateSink
	incidents   ports.IncidentStore
	checkpoints ports.CheckpointStore
	conditions  ports.ConditionStore
	obs         ports.Observability
	logger      *zap.Logger
}

// WithSource replaces the telemetry database reader.
func WithSource(s ports.SampleSource) Option {
	return func(o *overrides) { o.source = s }
}

// WithSink replaces the delivery target for winning candidates.
func WithSink(s ports.CandidateSink) Option {
	return func(o *overrides) { o.sink = s }
}

// WithIncidentStore replaces the store consulted for duplicate checks.
func WithIncidentStore(s ports.IncidentStore) Option {
	return func(o *overrides) { o.incidents = s }
}

// WithCheckpointStore replaces the incremental position store.
func WithCheckpointStore(s ports.CheckpointStore) Option {
	return func(o *overrides) { o.checkpoints = s }
}

// WithConditionStore replaces the durable debounce state store.
func WithConditionStore(s ports.ConditionStore) Option {
	return func(o *overrides) { o.conditions = s }
}

// WithObservability replaces logging and metrics wholesale. The
// service will not serve a metrics endpoint in that case.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithLogger sets the logger behind the default observability. Ignored
// when WithObservability is also given.
func WithLogger(l *zap.Logger) Option {
	return func(o *overrides) { o.logger = l }
}

// NewService wires a Service from cfg, honoring any overrides.
func NewService(cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("faultsync: nil config")
	}

	var ov overrides
	for _, o := range opts {
		o(&ov)
	}

	s := &Service{cfg: cfg}

	obs := ov.obs
	if obs == nil {
		logger := ov.logger
		if logger == nil {
			var err error
			logger, err = zap.NewProduction()
			if err != nil {
				return nil, fmt.Errorf("build logger: %w", err)
			}
		}
		s.registry = prometheus.NewRegistry()
		obs = observability.NewPromObs(logger, s.registry)
	}
	s.obs = obs

	src := ov.source
	var srcDB *sql.DB
	if src == nil {
		var err error
		srcDB, err = sql.Open("postgres", cfg.Source.ConnString)
		if err != nil {
			return nil, fmt.Errorf("open source db: %w", err)
		}
		s.cleanup = append(s.cleanup, func() { srcDB.Close() })
		src = source.NewPostgresSource(srcDB, source.Config{
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
	}

	conditions := ov.conditions
	if conditions == nil {
		fs, err := statestore.NewFileStore(cfg.State.Dir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open state store: %w", err)
		}
		conditions = fs
	}

	incidentStore := ov.incidents
	sink := ov.sink
	checkpoints := ov.checkpoints

	if cfg.Service.DryRun {
		if incidentStore == nil {
			incidentStore = discardIncidents{}
		}
		if sink == nil {
			sink = newDryRunSink(obs)
		}
		if checkpoints == nil {
			if srcDB != nil {
				checkpoints = checkpoint.NewPostgresStore(srcDB)
			} else {
				checkpoints = newMemoryCheckpoints()
			}
		}
	} else if incidentStore == nil || sink == nil || checkpoints == nil {
		tgtDB, err := sql.Open("postgres", cfg.Target.ConnString)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open target db: %w", err)
		}
		s.cleanup = append(s.cleanup, func() { tgtDB.Close() })

		store := incidents.NewPostgresStore(tgtDB, incidents.NewMapper(cfg.Mapping), cfg.Service.SystemUserEmail)
		if incidentStore == nil {
			incidentStore = store
		}
		if sink == nil {
			sink = store
		}
		if checkpoints == nil {
			checkpoints = checkpoint.NewPostgresStore(tgtDB)
		}
	}

	s.runner = runner.New(src, checkpoints, conditions, incidentStore, sink, activeRules(cfg), obs, runner.Options{
		CheckpointKey:  cfg.CheckpointKey(),
		LookbackHours:  cfg.Sync.LookbackHours,
		LeaseTTL:       cfg.Service.LeaseTTL.Std(),
		ClosedStatuses: cfg.Sync.ClosedStatuses,
	})
	return s, nil
}

// RunOnce performs a single incremental evaluation pass.
func (s *Service) RunOnce(ctx context.Context) (RunStats, error) {
	return s.runner.RunOnce(ctx)
}

// Run starts the cron scheduler, and the metrics endpoint when the
// service owns its registry, then blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("faultsync: service already running")
	}
	s.started = true
	s.mu.Unlock()

	var metricsSrv *http.Server
	if s.registry != nil && s.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		metricsSrv = &http.Server{Addr: s.cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.obs.Error("metrics_server_failed", err)
			}
		}()
	}

	tick := func() {
		if _, err := s.runner.RunOnce(ctx); err != nil {
			if errors.Is(err, runner.ErrRunInProgress) || errors.Is(err, context.Canceled) {
				return
			}
			s.obs.Error("run_failed", err)
		}
	}

	sched := cron.New()
	if _, err := sched.AddFunc(s.cfg.Service.Schedule, tick); err != nil {
		return fmt.Errorf("bad schedule %q: %w", s.cfg.Service.Schedule, err)
	}
	sched.Start()
	s.obs.Info("service_started",
		ports.Field{Key: "schedule", Value: s.cfg.Service.Schedule},
		ports.Field{Key: "dry_run", Value: s.cfg.Service.DryRun})

	if s.cfg.Service.RunOnStart {
		tick()
	}

	<-ctx.Done()

	cronCtx := sched.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		s.obs.Warn("run_shutdown_timeout")
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// Close releases the database handles the service opened. Safe to call
// more than once, and after Run returns.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

func activeRules(cfg *Config) engine.Rules {
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

// discardIncidents backs dry runs: nothing is ever a duplicate and
// nothing is persisted.
type discardIncidents struct{}

func (discardIncidents) LatestFault(context.Context, string, string) (*ports.FaultRecord, error) {
	return nil, nil
}

func (discardIncidents) Persist(context.Context, domain.FaultCandidate) (string, error) {
	return "", nil
}

func newDryRunSink(obs ports.Observability) CandidateSink {
	return NewCallbackSink("dry-run", func(_ context.Context, c Candidate) (string, error) {
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
		obs.Info("dry_run_candidate", fields...)
		return "DRY-RUN", nil
	})
}

// memoryCheckpoints serves embedders that override the source but not
// the checkpoint store in dry-run mode. State lives for the process.
type memoryCheckpoints struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{m: make(map[string]time.Time)}
}

func (c *memoryCheckpoints) LastProcessed(_ context.Context, key string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.m[key]
	return t, ok, nil
}

func (c *memoryCheckpoints) SetLastProcessed(_ context.Context, key string, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = t
	return nil
}

var _ ports.CheckpointStore = (*memoryCheckpoints)(nil)
