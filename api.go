package pubsub

import (
	"context"

	base "github.com/rd-openday18/pubsub/pkg/relay"
)

// Re-exported errors for convenience.
var ErrQueueFull = base.ErrQueueFull

// Type aliases so consumers can import github.com/rd-openday18/pubsub directly.
type (
	Config           = base.Config
	Policy           = base.Policy
	TransportConfig  = base.TransportConfig
	QueueConfig      = base.QueueConfig
	StateConfig      = base.StateConfig
	RedisConfig      = base.RedisConfig
	MetricsConfig    = base.MetricsConfig
	SimulatorConfig  = base.SimulatorConfig
	Flow             = base.Flow
	FlowOption       = base.FlowOption
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	PublisherRuntime = base.PublisherRuntime
	PublisherOption  = base.PublisherOption
	ReducerRuntime   = base.ReducerRuntime
	ReducerOption    = base.ReducerOption
	Reading          = base.Reading
	QueueEntry       = base.QueueEntry
	Envelope         = base.Envelope
	MetricState      = base.MetricState
	SystemState      = base.SystemState
	Collector        = base.Collector
	DurableQueue     = base.DurableQueue
	QueueStats       = base.QueueStats
	Publisher        = base.Publisher
	Subscriber       = base.Subscriber
	Delivery         = base.Delivery
	StateStore       = base.StateStore
	Observability    = base.Observability
	Field            = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...PublisherOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInQueue(q DurableQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutPublisher(p Publisher) StreamOutOption {
	return base.StreamOutPublisher(p)
}

func StreamOutSourceID(id string) StreamOutOption {
	return base.StreamOutSourceID(id)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

// Publisher runtime and options.
func NewPublisherRuntime(ctx context.Context, cfg *Config, opts ...PublisherOption) (*PublisherRuntime, error) {
	return base.NewPublisherRuntime(ctx, cfg, opts...)
}

func WithCollector(col Collector) PublisherOption {
	return base.WithCollector(col)
}

func WithQueue(q DurableQueue) PublisherOption {
	return base.WithQueue(q)
}

func WithPublisher(p Publisher) PublisherOption {
	return base.WithPublisher(p)
}

func WithObservability(obs Observability) PublisherOption {
	return base.WithObservability(obs)
}

func WithSourceID(id string) PublisherOption {
	return base.WithSourceID(id)
}

// Reducer runtime and options.
func NewReducerRuntime(ctx context.Context, cfg *Config, opts ...ReducerOption) (*ReducerRuntime, error) {
	return base.NewReducerRuntime(ctx, cfg, opts...)
}

func WithSubscriber(sub Subscriber) ReducerOption {
	return base.WithSubscriber(sub)
}

func WithStateStore(s StateStore) ReducerOption {
	return base.WithStateStore(s)
}

func WithReducerObservability(obs Observability) ReducerOption {
	return base.WithReducerObservability(obs)
}
