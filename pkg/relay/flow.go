package relay

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → StreamIN →
// StreamOUT without touching the underlying hexagonal wiring.
type Flow struct {
	cfg  *Config
	opts []PublisherOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the collector/queue side of the pipeline.
type StreamInOption func(*Flow)

// StreamOutOption configures the transport/observability side of the pipeline.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a
// Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it
// before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw PublisherOption values for advanced scenarios.
func (f *Flow) Options(opts ...PublisherOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records collector-side overrides (collector, queue, observability).
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records transport-side overrides and builds a
// PublisherRuntime ready to run.
func (f *Flow) StreamOUT(ctx context.Context, opts ...StreamOutOption) (*PublisherRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewPublisherRuntime(ctx, f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(ctx, opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// Reduce builds a ReducerRuntime from the same configuration, for
// services that embed the consumer side instead of the publisher.
func (f *Flow) Reduce(ctx context.Context, opts ...ReducerOption) (*ReducerRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	if err := f.cfg.ValidateReducer(); err != nil {
		return nil, err
	}
	return NewReducerRuntime(ctx, f.cfg, opts...)
}

// WithFlowOptions appends PublisherOption values during Conf.
func WithFlowOptions(opts ...PublisherOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInCollector injects a custom reading source (files, sockets, simulators, etc.).
func StreamInCollector(col Collector) StreamInOption {
	return func(f *Flow) {
		if f != nil && col != nil {
			f.appendOptions(WithCollector(col))
		}
	}
}

// StreamInQueue swaps the durable queue for a caller-provided implementation.
func StreamInQueue(q DurableQueue) StreamInOption {
	return func(f *Flow) {
		if f != nil && q != nil {
			f.appendOptions(WithQueue(q))
		}
	}
}

// StreamInObservability overrides the default Prometheus-based
// observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutPublisher injects a custom ports.Publisher implementation.
func StreamOutPublisher(p Publisher) StreamOutOption {
	return func(f *Flow) {
		if f != nil && p != nil {
			f.appendOptions(WithPublisher(p))
		}
	}
}

// StreamOutSourceID fixes the envelope source id instead of generating one.
func StreamOutSourceID(id string) StreamOutOption {
	return func(f *Flow) {
		if f != nil && id != "" {
			f.appendOptions(WithSourceID(id))
		}
	}
}

// StreamOutObservability replaces the default observability backend.
func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

func (f *Flow) appendOptions(opts ...PublisherOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
