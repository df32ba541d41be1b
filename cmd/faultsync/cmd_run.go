package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/observability"
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/config"
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync scheduler until interrupted",
	Long: "Starts the cron scheduler, serving Prometheus metrics on the\n" +
		"configured address. Each tick performs one incremental evaluation\n" +
		"pass; overlapping ticks are skipped via the run lease.",
	RunE: runRun,
}

var (
	runConfigPath string
	runVerbose    bool
)

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "config.yaml", "path to the configuration file")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "development-style logging")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(runVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	obs := observability.NewPromObs(logger, reg)

	r, cleanup, err := buildRunner(cfg, obs)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{
		Addr:    cfg.Metrics.Addr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	tick := func() {
		if _, err := r.RunOnce(ctx); err != nil {
			if errors.Is(err, runner.ErrRunInProgress) || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("run failed", zap.Error(err))
		}
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.Service.Schedule, tick); err != nil {
		return err
	}
	sched.Start()
	logger.Info("scheduler started",
		zap.String("schedule", cfg.Service.Schedule),
		zap.String("metrics", cfg.Metrics.Addr),
		zap.Bool("dry_run", cfg.Service.DryRun))

	if cfg.Service.RunOnStart {
		tick()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	cronCtx := sched.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("timed out waiting for the running job")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsSrv.Shutdown(shutdownCtx)
}
