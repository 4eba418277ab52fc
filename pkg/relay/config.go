package relay

import (
	"github.com/rd-openday18/pubsub/internal/adapters/collector"
	"github.com/rd-openday18/pubsub/internal/adapters/state"
	"github.com/rd-openday18/pubsub/internal/adapters/transport/gcloud"
	"github.com/rd-openday18/pubsub/internal/app/config"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects
// can construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls queue capacity, batching, and retry backoff.
	Policy = ports.Policy
	// TransportConfig holds the Pub/Sub project, topic, and subscription.
	TransportConfig = gcloud.Config
	// QueueConfig locates the durable queue directory.
	QueueConfig = config.QueueConfig
	// StateConfig selects and configures the reducer's state backend.
	StateConfig = config.StateConfig
	// RedisConfig configures the Redis state backend.
	RedisConfig = state.RedisConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// SimulatorConfig configures the synthetic reading generator.
	SimulatorConfig = collector.SimulatorConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
