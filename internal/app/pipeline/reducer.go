package pipeline

import (
	"context"
	"sync"

	"github.com/rd-openday18/pubsub/internal/codec"
	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// Reducer folds delivered envelopes into the system state. It is the
// exclusive writer of both the in-memory view and the state store; a
// metric only moves forward, to the highest sequence id seen, so
// duplicate and reordered delivery are harmless.
type Reducer struct {
	mu    sync.Mutex
	state domain.SystemState
	store ports.StateStore
	obs   ports.Observability
}

// NewReducer loads the persisted snapshot so a restarted reducer
// resumes from where it left off.
func NewReducer(ctx context.Context, store ports.StateStore, obs ports.Observability) (*Reducer, error) {
	snap, err := store.ReadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = make(domain.SystemState)
	}
	return &Reducer{state: snap, store: store, obs: obs}, nil
}

// Apply merges one envelope. It reports whether the envelope advanced
// the state; a stale envelope (lower or equal sequence id) is a no-op.
// The store write happens before the in-memory view moves, so a store
// failure leaves the state unchanged and the message unacknowledged.
func (r *Reducer) Apply(ctx context.Context, env *domain.Envelope) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, exists := r.state[env.MetricName]
	if exists && env.Seq <= cur.LastSeq {
		return false, nil
	}

	next := domain.MetricState{
		LastValue:       env.Value,
		LastTimestampMs: env.TimestampMs,
		LastSeq:         env.Seq,
		SourceID:        env.SourceID,
	}
	if err := r.store.WriteMetric(ctx, env.MetricName, next); err != nil {
		return false, err
	}
	r.state[env.MetricName] = next
	return true, nil
}

// Handle is the subscription callback: decode, merge, acknowledge.
// Malformed envelopes are acknowledged and dropped so a poison message
// is not redelivered forever; a store failure nacks for redelivery.
func (r *Reducer) Handle(ctx context.Context, d ports.Delivery) {
	env, err := codec.Decode(d.Data)
	if err != nil {
		r.obs.IncCounter("reducer_malformed_total", 1)
		r.obs.LogError("envelope_decode_failed", err, ports.Field{Key: "message_id", Value: d.ID})
		d.Ack()
		return
	}

	applied, err := r.Apply(ctx, env)
	if err != nil {
		r.obs.LogError("state_write_failed", err,
			ports.Field{Key: "metric", Value: env.MetricName},
			ports.Field{Key: "seq", Value: env.Seq})
		d.Nack()
		return
	}

	if applied {
		r.obs.IncCounter("reducer_applied_total", 1)
	} else {
		r.obs.IncCounter("reducer_stale_total", 1)
	}
	d.Ack()
}

// State returns a snapshot copy for external readers.
func (r *Reducer) State() domain.SystemState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// RunReducePipeline consumes the subscription until ctx is cancelled.
func RunReducePipeline(ctx context.Context, sub ports.Subscriber, r *Reducer) error {
	return sub.Receive(ctx, r.Handle)
}
