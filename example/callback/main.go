package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TheBunny221/sync-service-urban-voice/pkg/faultsync"
)

func main() {
	cfg, err := faultsync.LoadConfig("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sink := faultsync.NewCallbackSink("stdout", func(_ context.Context, c faultsync.Candidate) (string, error) {
		fmt.Printf("%s unit=%s tag=%s value=%s fault=%s\n",
			c.EventTime.Format(time.RFC3339),
			c.UnitID,
			c.Tag,
			c.Value,
			c.Rule.FaultType,
		)
		return "", nil
	})

	svc, err := faultsync.NewService(cfg, faultsync.WithSink(sink))
	if err != nil {
		log.Fatalf("build service: %v", err)
	}
	defer svc.Close()

	stats, err := svc.RunOnce(context.Background())
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	fmt.Printf("rows=%d candidates=%d created=%d suppressed=%d\n",
		stats.Rows, stats.Candidates, stats.Created, stats.Suppressed)
}
