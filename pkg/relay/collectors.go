package relay

import (
	"io"

	"github.com/rd-openday18/pubsub/internal/adapters/collector"
)

// NewLineCollector streams key=value lines from r into the pipeline.
func NewLineCollector(r io.Reader, obs Observability) Collector {
	return collector.NewLineCollector(r, obs)
}

// NewSimulator produces synthetic random-walk readings, for load tests
// and local development without a real line source.
func NewSimulator(cfg SimulatorConfig) Collector {
	return collector.NewSimulator(cfg)
}
