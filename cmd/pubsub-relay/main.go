package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rd-openday18/pubsub"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "publish":
		err = publishCommand(os.Args[2:])
	case "reduce":
		err = reduceCommand(os.Args[2:])
	case "simulate":
		err = simulateCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("pubsub-relay %s: %v", cmd, err)
	}
}

func publishCommand(args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to relay configuration file")
	sourceID := fs.String("source-id", "", "Fixed source id for envelopes (default: random UUID)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := pubsub.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx, pubsub.StreamOutSourceID(*sourceID))
}

func reduceCommand(args []string) error {
	fs := flag.NewFlagSet("reduce", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to relay configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := pubsub.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := flow.Reduce(ctx)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func simulateCommand(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to relay configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := pubsub.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sim := pubsub.NewSimulator(flow.Config().Simulator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.StreamIN(pubsub.StreamInCollector(sim)).Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	reducer := fs.Bool("reducer", false, "Also check the reducer-only settings")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := pubsub.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *reducer {
		if err := cfg.ValidateReducer(); err != nil {
			return err
		}
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"relay_published_total":  0,
		"relay_queue_pending":    0,
		"relay_queue_size_bytes": 0,
		"reducer_applied_total":  0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] published=%f pending=%f queue_bytes=%f applied=%f\n",
		time.Now().Format(time.RFC3339),
		targets["relay_published_total"],
		targets["relay_queue_pending"],
		targets["relay_queue_size_bytes"],
		targets["reducer_applied_total"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`pubsub-relay CLI

Usage:
  pubsub-relay <command> [flags]

Commands:
  publish    Read lines from stdin, buffer them durably, and publish to Pub/Sub
  reduce     Consume envelopes and fold them into the latest-value system state
  simulate   Publish synthetic readings instead of reading stdin
  validate   Load and validate a config file without starting anything
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  pubsub-relay publish -config ./data/config.yaml
  pubsub-relay reduce -config ./data/config.yaml
  pubsub-relay simulate -config ./data/config.yaml
  pubsub-relay validate -config ./data/config.yaml -reducer
  pubsub-relay stats -url http://localhost:9100/metrics -interval 1s
`)
}
