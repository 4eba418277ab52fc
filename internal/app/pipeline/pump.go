package pipeline

import (
	"context"
	"time"

	"github.com/rd-openday18/pubsub/internal/codec"
	"github.com/rd-openday18/pubsub/internal/ports"
)

const (
	defaultPublishTimeout = 10 * time.Second
	defaultBackoffBase    = 500 * time.Millisecond
	defaultBackoffMax     = 30 * time.Second
)

// RunPublisherPump drains the queue until ctx is cancelled: peek a
// batch, publish each entry in ascending sequence order, acknowledge
// on confirmed publish. A failed publish or acknowledge leaves the
// entry (and the rest of the batch) in place and backs off
// exponentially per batch, so republication never jumps ahead of an
// unacknowledged entry.
// On cancellation the in-flight publish attempt is allowed to finish;
// unacknowledged entries stay durable for the next run.
func RunPublisherPump(ctx context.Context, q ports.DurableQueue, pub ports.Publisher, sourceID string, pol ports.Policy, obs ports.Observability) error {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}
	timeout := pol.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	base := pol.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	max := pol.BackoffMax
	if max <= 0 {
		max = defaultBackoffMax
	}

	delay := base
	for {
		if ctx.Err() != nil {
			return nil
		}

		batch, err := q.PeekBatch(pol.MaxBatchSize)
		if err != nil {
			obs.LogError("queue_peek_failed", err)
			if !sleepOrDone(ctx, idle) {
				return nil
			}
			continue
		}
		if len(batch) == 0 {
			if !sleepOrDone(ctx, idle) {
				return nil
			}
			continue
		}

		failed := false
		for _, entry := range batch {
			if ctx.Err() != nil {
				return nil
			}

			data, err := codec.EncodeEntry(entry, sourceID)
			if err != nil {
				// unencodable entries can never be delivered; drop them
				obs.LogCritical("envelope_encode_failed", err, ports.Field{Key: "seq", Value: entry.Seq})
				_ = q.Acknowledge(entry.Seq)
				continue
			}

			attempt := q.MarkAttempt(entry.Seq)

			// detached from ctx so a shutdown lets the in-flight
			// attempt run to completion
			pubCtx, cancel := context.WithTimeout(context.Background(), timeout)
			start := time.Now()
			err = pub.Publish(pubCtx, data)
			cancel()

			if err != nil {
				obs.IncCounter("relay_publish_retries_total", 1)
				obs.LogError("publish_failed", err,
					ports.Field{Key: "seq", Value: entry.Seq},
					ports.Field{Key: "attempt", Value: attempt})
				failed = true
				break
			}

			obs.ObserveLatency("relay_publish_latency_seconds", time.Since(start).Seconds())
			obs.IncCounter("relay_published_total", 1)
			if err := q.Acknowledge(entry.Seq); err != nil {
				// moving on would republish this entry after higher
				// seqs already went out; stop the batch instead so
				// redelivery stays in order
				obs.LogError("queue_ack_failed", err, ports.Field{Key: "seq", Value: entry.Seq})
				failed = true
				break
			}
		}

		if failed {
			if !sleepOrDone(ctx, delay) {
				return nil
			}
			delay *= 2
			if delay > max {
				delay = max
			}
		} else {
			delay = base
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
