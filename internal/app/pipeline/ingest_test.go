package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rd-openday18/pubsub/internal/adapters/queue"
	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

type stubCollector struct {
	readings []*domain.Reading
}

func (s *stubCollector) Start(out chan<- *domain.Reading) error {
	go func() {
		defer close(out)
		for _, r := range s.readings {
			out <- r
		}
	}()
	return nil
}

func (s *stubCollector) Stop() error { return nil }

type flakyQueue struct {
	mu       sync.Mutex
	failures int
	inner    *queue.MemQueue
}

func (q *flakyQueue) Enqueue(r *domain.Reading) (*domain.QueueEntry, error) {
	q.mu.Lock()
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return nil, ports.ErrQueueFull
	}
	q.mu.Unlock()
	return q.inner.Enqueue(r)
}

func (q *flakyQueue) PeekBatch(max int) ([]*domain.QueueEntry, error) { return q.inner.PeekBatch(max) }
func (q *flakyQueue) Acknowledge(seq uint64) error                    { return q.inner.Acknowledge(seq) }
func (q *flakyQueue) MarkAttempt(seq uint64) int                      { return q.inner.MarkAttempt(seq) }
func (q *flakyQueue) Stats() ports.QueueStats                         { return q.inner.Stats() }
func (q *flakyQueue) Close() error                                    { return q.inner.Close() }

func TestIngestPipelineEnqueuesReadings(t *testing.T) {
	q := queue.NewMemQueue(queue.Options{})
	col := &stubCollector{readings: []*domain.Reading{
		{MetricName: "temp", Value: 1.0},
		{MetricName: "hum", Value: 2.0},
		{MetricName: "temp", Value: 3.0},
	}}
	obs := newMockObs()

	done, err := RunIngestPipeline(context.Background(), col, q, ports.Policy{IdleSleep: time.Millisecond}, obs)
	if err != nil {
		t.Fatalf("run ingest: %v", err)
	}

	// the loop exits once the collector closes its channel
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingest loop did not finish")
	}

	if got := q.Stats().Pending; got != 3 {
		t.Fatalf("expected 3 entries, got %d", got)
	}
	batch, _ := q.PeekBatch(10)
	for i := 1; i < len(batch); i++ {
		if batch[i].Seq <= batch[i-1].Seq {
			t.Fatalf("persisted order does not match issuance order: %+v", batch)
		}
	}
}

func TestIngestPipelineStopsOnCancel(t *testing.T) {
	q := queue.NewMemQueue(queue.Options{})
	// a collector that produces nothing and never closes its channel
	col := &idleCollector{}
	obs := newMockObs()

	ctx, cancel := context.WithCancel(context.Background())
	done, err := RunIngestPipeline(ctx, col, q, ports.Policy{IdleSleep: time.Millisecond}, obs)
	if err != nil {
		t.Fatalf("run ingest: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingest loop did not exit after cancel")
	}
}

type idleCollector struct{}

func (c *idleCollector) Start(out chan<- *domain.Reading) error { return nil }
func (c *idleCollector) Stop() error                            { return nil }

func TestEnqueueWithPolicyBlocksUntilRoom(t *testing.T) {
	q := &flakyQueue{failures: 2, inner: queue.NewMemQueue(queue.Options{})}
	obs := newMockObs()
	pol := ports.Policy{OnQueueFull: "block", IdleSleep: time.Millisecond}

	if ok := enqueueWithPolicy(q, &domain.Reading{MetricName: "temp", Value: 1.0}, pol, obs); !ok {
		t.Fatalf("expected enqueue to eventually succeed")
	}
	if q.Stats().Pending != 1 {
		t.Fatalf("entry not enqueued")
	}
}

func TestEnqueueWithPolicyReject(t *testing.T) {
	q := &flakyQueue{failures: 1 << 30, inner: queue.NewMemQueue(queue.Options{})}
	obs := newMockObs()
	pol := ports.Policy{OnQueueFull: "reject", IdleSleep: time.Millisecond}

	if ok := enqueueWithPolicy(q, &domain.Reading{MetricName: "temp", Value: 1.0}, pol, obs); ok {
		t.Fatalf("expected enqueue to reject")
	}
	if len(obs.errs) == 0 {
		t.Fatalf("expected drop to be logged")
	}
}
