package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/rd-openday18/pubsub"
)

func main() {
	flow, err := pubsub.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reads key=value lines from stdin and publishes them.
	if err := flow.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("publisher runtime exited: %v", err)
	}
}
