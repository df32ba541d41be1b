package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheBunny221/sync-service-urban-voice/internal/app/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file and summarize the loaded rules",
	RunE:  runValidate,
}

var validateConfigPath string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "config.yaml", "path to the configuration file")
}

func runValidate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(validateConfigPath)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	rules := ruleSets(cfg)
	rateCount := 0
	for _, r := range append(rules.Digital, rules.Analog...) {
		if r.IsRate() {
			rateCount++
		}
	}

	fmt.Printf("config OK\n")
	fmt.Printf("  client:        %s\n", cfg.Service.ClientID)
	fmt.Printf("  schedule:      %s\n", cfg.Service.Schedule)
	fmt.Printf("  digital rules: %d\n", len(rules.Digital))
	fmt.Printf("  analog rules:  %d\n", len(rules.Analog))
	fmt.Printf("  master rules:  %d\n", len(rules.Master))
	fmt.Printf("  rate rules:    %d\n", rateCount)
	fmt.Printf("  digital tags:  %v\n", cfg.DigitalTags())
	fmt.Printf("  analog tags:   %v\n", cfg.AnalogTags())
	if len(cfg.OPCUA.Nodes) > 0 {
		fmt.Printf("  opcua nodes:   %d (%s)\n", len(cfg.OPCUA.Nodes), cfg.OPCUA.Endpoint)
	}
	return nil
}
