package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// RunIngestPipeline starts the collector and feeds its readings into
// the durable queue on a background goroutine. Enqueue persists each
// entry before the loop moves on; capacity pressure is resolved by the
// configured policy. The returned channel closes once the loop has
// drained, which happens when the collector closes its output or ctx
// is cancelled.
func RunIngestPipeline(ctx context.Context, col ports.Collector, q ports.DurableQueue, pol ports.Policy, obs ports.Observability) (<-chan struct{}, error) {
	buf := pol.MaxQueueLen
	if buf <= 0 || buf > 4096 {
		buf = 4096
	}
	ch := make(chan *domain.Reading, buf)

	if err := col.Start(ch); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-ch:
				if !ok {
					return
				}
				if !enqueueWithPolicy(q, r, pol, obs) {
					obs.IncCounter("relay_dropped_total", 1)
				}
			}
		}
	}()

	return done, nil
}

func enqueueWithPolicy(q ports.DurableQueue, r *domain.Reading, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		_, err := q.Enqueue(r)
		if err == nil {
			return true
		}
		if !errors.Is(err, ports.ErrQueueFull) {
			obs.LogCritical("queue_enqueue_failed", err)
			return false
		}

		switch pol.OnQueueFull {
		case "block":
			time.Sleep(sleep)
		case "reject", "drop_oldest":
			// drop_oldest is enforced inside the queue; a full error
			// here means it could not make room either
			obs.LogError("queue_full_drop", fmt.Errorf("queue rejected entry at capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
