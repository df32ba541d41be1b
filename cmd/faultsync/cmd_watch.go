package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/observability"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/opcua"
	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/statestore"
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/config"
	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/engine"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Evaluate live OPC UA data changes against the rules",
	Long: "Subscribes to the configured OPC UA nodes and runs every data\n" +
		"change through the rule engine, logging the candidates that would\n" +
		"be registered. Nothing is written to the grievance database.",
	RunE: runWatch,
}

var (
	watchConfigPath string
	watchVerbose    bool
)

func init() {
	watchCmd.Flags().StringVarP(&watchConfigPath, "config", "c", "config.yaml", "path to the configuration file")
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "development-style logging")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(watchConfigPath)
	if err != nil {
		return err
	}
	if len(cfg.OPCUA.Nodes) == 0 {
		return errors.New("watch requires opcua nodes in the configuration")
	}

	logger, err := newLogger(watchVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	obs := observability.NewPromObs(logger, prometheus.NewRegistry())

	// Live watching keeps sustain timers in memory only; a restart
	// restarts the timers.
	tracker := engine.NewTracker(statestore.NewMemoryStore(), obs)
	sel := engine.NewSelector(
		engine.NewMatcher(tracker, obs),
		engine.NewRateEvaluator(tracker, obs, time.Now),
		engine.NewArbiter(tracker, obs),
		engine.NewGate(nopIncidents{}, nil, obs),
		logSink{obs: obs},
		watchSource{},
		ruleSets(cfg),
		obs,
	)

	collector, err := opcua.NewCollector(cfg.OPCUA, obs)
	if err != nil {
		return err
	}

	out := make(chan domain.Sample, 64)
	if err := collector.Start(out); err != nil {
		return err
	}
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("watching")
	for {
		select {
		case <-ctx.Done():
			return sel.Flush(context.Background())
		case s := <-out:
			// Each data change is its own evaluation group.
			if err := sel.Offer(ctx, s); err != nil {
				return err
			}
			if err := sel.Flush(ctx); err != nil {
				return err
			}
		}
	}
}

// watchSource backs the live selector. There is no historical window in
// watch mode, so rate rules never fire.
type watchSource struct{}

func (watchSource) Stream(context.Context, time.Time, func(domain.Sample) error) error {
	return nil
}

func (watchSource) FetchHistory(context.Context, string, int) ([]domain.Sample, error) {
	return nil, nil
}

func (watchSource) CommunicationFaults(context.Context) ([]domain.Sample, error) {
	return nil, nil
}

func (watchSource) PowerFailures(context.Context) ([]domain.Sample, error) {
	return nil, nil
}

var _ ports.SampleSource = watchSource{}
