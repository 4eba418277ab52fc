package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rd-openday18/pubsub/internal/adapters/collector"
	"github.com/rd-openday18/pubsub/internal/adapters/state"
	"github.com/rd-openday18/pubsub/internal/adapters/transport/gcloud"
	"github.com/rd-openday18/pubsub/internal/ports"
)

type Config struct {
	Policy    ports.Policy              `yaml:"policy"`
	Transport gcloud.Config             `yaml:"transport"`
	Queue     QueueConfig               `yaml:"queue"`
	State     StateConfig               `yaml:"state"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Simulator collector.SimulatorConfig `yaml:"simulator"`
}

// QueueConfig locates the durable queue. An empty dir is the explicit
// reduced-durability mode: readings buffer in memory only and are lost
// on crash.
type QueueConfig struct {
	Dir string `yaml:"dir"`
}

type StateConfig struct {
	Backend  string            `yaml:"backend"` // "redis", "badger", "postgres", "file"
	Redis    state.RedisConfig `yaml:"redis"`
	Badger   BadgerConfig      `yaml:"badger"`
	Postgres PostgresConfig    `yaml:"postgres"`
	File     FileConfig        `yaml:"file"`
}

type BadgerConfig struct {
	Dir string `yaml:"dir"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 100_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.PublishTimeout == 0 {
		c.Policy.PublishTimeout = 10 * time.Second
	}
	if c.Policy.BackoffBase == 0 {
		c.Policy.BackoffBase = 500 * time.Millisecond
	}
	if c.Policy.BackoffMax == 0 {
		c.Policy.BackoffMax = 30 * time.Second
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.State.Backend == "" {
		c.State.Backend = "redis"
	}
	if c.State.Badger.Dir == "" {
		c.State.Badger.Dir = "./data/state"
	}
	if c.State.File.Path == "" {
		c.State.File.Path = "./data/state.snap"
	}
	if c.State.Postgres.Table == "" {
		c.State.Postgres.Table = "system_state"
	}

	c.Transport.ApplyDefaults()
	c.State.Redis.ApplyDefaults()
	c.Simulator.ApplyDefaults()
}

// validate covers what every role needs. Missing configuration is
// fatal before any loop starts.
func (c *Config) validate() error {
	if c.Transport.ProjectID == "" {
		return fmt.Errorf("transport.project_id is required")
	}
	if c.Transport.Topic == "" {
		return fmt.Errorf("transport.topic is required")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	switch c.Policy.OnQueueFull {
	case "block", "reject", "drop_oldest":
	default:
		return fmt.Errorf("policy.on_queue_full must be block, reject, or drop_oldest")
	}
	return nil
}

// ValidateReducer checks the settings only the reducer role needs.
func (c *Config) ValidateReducer() error {
	if c.Transport.Subscription == "" {
		return fmt.Errorf("transport.subscription is required")
	}
	switch c.State.Backend {
	case "redis":
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("state.redis.addr is required")
		}
	case "badger", "file":
	case "postgres":
		if c.State.Postgres.ConnString == "" {
			return fmt.Errorf("state.postgres.conn_string is required")
		}
	default:
		return fmt.Errorf("state.backend must be redis, badger, postgres, or file")
	}
	return nil
}
