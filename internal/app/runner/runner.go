package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/engine"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// ErrRunInProgress is returned when a run is skipped because another
// holds the lease.
var ErrRunInProgress = errors.New("run already in progress")

// Options carries the run-level knobs. A nil ClosedStatuses selects
// the gate's defaults.
type Options struct {
	CheckpointKey  string
	LookbackHours  int
	LeaseTTL       time.Duration
	ClosedStatuses []string
}

// Runner drives one full evaluation pass: resolve the incremental
// position, fold in the computed-state detectors, stream the main
// telemetry through the selection stage, and advance the checkpoint on
// a clean pass.
type Runner struct {
	source      ports.SampleSource
	checkpoints ports.CheckpointStore
	conditions  ports.ConditionStore
	incidents   ports.IncidentStore
	sink        ports.CandidateSink
	rules       engine.Rules
	obs         ports.Observability
	opts        Options
	lease       *Lease
	now         func() time.Time
}

func New(
	source ports.SampleSource,
	checkpoints ports.CheckpointStore,
	conditions ports.ConditionStore,
	incidents ports.IncidentStore,
	sink ports.CandidateSink,
	rules engine.Rules,
	obs ports.Observability,
	opts Options,
) *Runner {
	if opts.LookbackHours <= 0 {
		opts.LookbackHours = 24
	}
	if opts.CheckpointKey == "" {
		opts.CheckpointKey = "LAST_SYNC_TIME_default"
	}
	return &Runner{
		source:      source,
		checkpoints: checkpoints,
		conditions:  conditions,
		incidents:   incidents,
		sink:        sink,
		rules:       rules,
		obs:         obs,
		opts:        opts,
		lease:       NewLease(opts.LeaseTTL),
		now:         time.Now,
	}
}

// RunOnce executes one evaluation pass. Overlapping invocations are
// skipped with ErrRunInProgress.
func (r *Runner) RunOnce(ctx context.Context) (engine.RunStats, error) {
	owner, ok := r.lease.TryAcquire()
	if !ok {
		r.obs.Warn("run_skipped_in_progress")
		return engine.RunStats{}, ErrRunInProgress
	}
	defer r.lease.Release(owner)

	start := r.now()
	defer func() {
		r.obs.ObserveLatency("faultsync_run_duration_seconds", r.now().Sub(start).Seconds())
	}()

	since := r.resolveSince(ctx)
	r.obs.Info("run_started",
		ports.Field{Key: "since", Value: since.Format(time.RFC3339)},
		ports.Field{Key: "sink", Value: r.sink.Name()})

	tracker := engine.NewTracker(r.conditions, r.obs)
	sel := engine.NewSelector(
		engine.NewMatcher(tracker, r.obs),
		engine.NewRateEvaluator(tracker, r.obs, r.now),
		engine.NewArbiter(tracker, r.obs),
		engine.NewGate(r.incidents, r.opts.ClosedStatuses, r.obs),
		r.sink,
		r.source,
		r.rules,
		r.obs,
	)

	if err := r.offerComputed(ctx, sel); err != nil {
		return sel.Stats(), err
	}

	var latest time.Time
	err := r.source.Stream(ctx, since, func(s domain.Sample) error {
		r.obs.IncCounter("faultsync_rows_total", 1)
		if s.EventTime.After(latest) {
			latest = s.EventTime
		}
		return sel.Offer(ctx, s)
	})
	if err != nil {
		return sel.Stats(), fmt.Errorf("stream telemetry: %w", err)
	}
	if err := sel.Flush(ctx); err != nil {
		return sel.Stats(), err
	}

	// The checkpoint only advances after a clean pass, so a failed run
	// re-reads its window next time.
	if !latest.IsZero() {
		if err := r.checkpoints.SetLastProcessed(ctx, r.opts.CheckpointKey, latest); err != nil {
			return sel.Stats(), fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	stats := sel.Stats()
	r.obs.Info("run_completed",
		ports.Field{Key: "rows", Value: stats.Rows},
		ports.Field{Key: "candidates", Value: stats.Candidates},
		ports.Field{Key: "created", Value: stats.Created},
		ports.Field{Key: "suppressed", Value: stats.Suppressed},
		ports.Field{Key: "errors", Value: stats.Errors})
	return stats, nil
}

// resolveSince turns the stored checkpoint into the stream's lower
// bound. Missing, unreadable or future-dated checkpoints fall back to
// the lookback window.
func (r *Runner) resolveSince(ctx context.Context) time.Time {
	fallback := r.now().Add(-time.Duration(r.opts.LookbackHours) * time.Hour)

	since, ok, err := r.checkpoints.LastProcessed(ctx, r.opts.CheckpointKey)
	if err != nil {
		r.obs.Error("checkpoint_read_failed", err, ports.Field{Key: "key", Value: r.opts.CheckpointKey})
		return fallback
	}
	if !ok {
		return fallback
	}
	if since.After(r.now()) {
		r.obs.Warn("checkpoint_in_future",
			ports.Field{Key: "key", Value: r.opts.CheckpointKey},
			ports.Field{Key: "value", Value: since.Format(time.RFC3339)})
		return fallback
	}
	return since
}

// offerComputed runs the staleness and power detectors concurrently and
// feeds their synthetic samples through the selector ahead of the main
// stream, grouped by unit. Detector failures degrade to an empty set.
func (r *Runner) offerComputed(ctx context.Context, sel *engine.Selector) error {
	var comm, power []domain.Sample

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if comm, err = r.source.CommunicationFaults(gctx); err != nil {
			r.obs.Error("comm_fault_detect_failed", err)
			comm = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if power, err = r.source.PowerFailures(gctx); err != nil {
			r.obs.Error("power_fault_detect_failed", err)
			power = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	computed := append(comm, power...)
	sort.SliceStable(computed, func(i, j int) bool {
		if computed[i].UnitID != computed[j].UnitID {
			return computed[i].UnitID < computed[j].UnitID
		}
		return computed[i].EventTime.Before(computed[j].EventTime)
	})

	for _, s := range computed {
		if err := sel.Offer(ctx, s); err != nil {
			return err
		}
	}
	return sel.Flush(ctx)
}
