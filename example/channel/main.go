package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/TheBunny221/sync-service-urban-voice/pkg/faultsync"
)

func main() {
	cfg, err := faultsync.LoadConfig("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sink, candidates, closeSink := faultsync.NewChannelSink("channel", 64)

	svc, err := faultsync.NewService(cfg, faultsync.WithSink(sink))
	if err != nil {
		log.Fatalf("build service: %v", err)
	}
	defer svc.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for c := range candidates {
			fmt.Printf("unit=%s tag=%s value=%s rule=%q\n",
				c.UnitID, c.Tag, c.Value, c.Rule.Description)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = svc.Run(ctx)
	closeSink()
	wg.Wait()
	if err != nil && err != context.Canceled {
		log.Fatalf("service exited: %v", err)
	}
}
