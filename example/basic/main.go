package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	faultsync "github.com/TheBunny221/sync-service-urban-voice"
)

func main() {
	cfg, err := faultsync.LoadConfig("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	svc, err := faultsync.NewService(cfg)
	if err != nil {
		log.Fatalf("build service: %v", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("service exited: %v", err)
	}
}
