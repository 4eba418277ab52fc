package relay

import (
	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// Reading is a parsed line as it flows through the collector → queue →
// pump pipeline. It mirrors internal/domain.Reading but is exported so
// custom collectors can produce it.
type Reading = domain.Reading

// QueueEntry is a reading wrapped with its durable sequence id.
type QueueEntry = domain.QueueEntry

// Envelope is the versioned wire message published to the transport.
type Envelope = domain.Envelope

// MetricState is the reduced latest-value record for one metric.
type MetricState = domain.MetricState

// SystemState maps metric name to its latest state.
type SystemState = domain.SystemState

// Collector streams readings from any source (line streams, simulators,
// serial ports, etc.) into the pipeline.
type Collector = ports.Collector

// DurableQueue is the crash-surviving buffer between the collector and
// the publisher pump.
type DurableQueue = ports.DurableQueue

// QueueStats exposes queue depth and durability metadata.
type QueueStats = ports.QueueStats

// Publisher confirms delivery of encoded envelopes to the transport.
type Publisher = ports.Publisher

// Subscriber delivers envelopes with per-message Ack/Nack.
type Subscriber = ports.Subscriber

// Delivery is one received message plus its settlement callbacks.
type Delivery = ports.Delivery

// StateStore persists the reduced system state.
type StateStore = ports.StateStore

// Observability emits metrics/logs about throughput, drops, and retries.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// ErrQueueFull is returned by DurableQueue.Enqueue at capacity under
// the "reject" policy.
var ErrQueueFull = ports.ErrQueueFull
