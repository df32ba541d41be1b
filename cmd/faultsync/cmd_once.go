package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/TheBunny221/sync-service-urban-voice/internal/adapters/observability"
	"github.com/TheBunny221/sync-service-urban-voice/internal/app/config"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Perform a single evaluation pass and exit",
	RunE:  runOnce,
}

var (
	onceConfigPath string
	onceVerbose    bool
	onceDryRun     bool
)

func init() {
	onceCmd.Flags().StringVarP(&onceConfigPath, "config", "c", "config.yaml", "path to the configuration file")
	onceCmd.Flags().BoolVarP(&onceVerbose, "verbose", "v", false, "development-style logging")
	onceCmd.Flags().BoolVar(&onceDryRun, "dry-run", false, "log candidates instead of registering complaints")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(onceConfigPath)
	if err != nil {
		return err
	}
	if onceDryRun {
		cfg.Service.DryRun = true
	}

	logger, err := newLogger(onceVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	obs := observability.NewPromObs(logger, prometheus.NewRegistry())
	r, cleanup, err := buildRunner(cfg, obs)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := r.RunOnce(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("rows=%d candidates=%d created=%d suppressed=%d errors=%d\n",
		stats.Rows, stats.Candidates, stats.Created, stats.Suppressed, stats.Errors)
	if stats.Errors > 0 {
		return fmt.Errorf("%d candidate deliveries failed", stats.Errors)
	}
	return nil
}
