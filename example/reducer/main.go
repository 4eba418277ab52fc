package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/rd-openday18/pubsub"
)

func main() {
	flow, err := pubsub.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := flow.Reduce(ctx)
	if err != nil {
		log.Fatalf("build reducer: %v", err)
	}

	go printState(ctx, rt)

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("reducer runtime exited: %v", err)
	}
}

func printState(ctx context.Context, rt *pubsub.ReducerRuntime) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, st := range rt.State() {
				fmt.Printf("%s = %v (seq=%d, ts=%d, source=%s)\n",
					name, st.LastValue, st.LastSeq, st.LastTimestampMs, st.SourceID)
			}
		}
	}
}
