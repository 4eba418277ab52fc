package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rd-openday18/pubsub/internal/adapters/queue"
	"github.com/rd-openday18/pubsub/internal/codec"
	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

type mockObs struct {
	mu       sync.Mutex
	counters map[string]float64
	errs     []string
}

func newMockObs() *mockObs {
	return &mockObs{counters: make(map[string]float64)}
}

func (m *mockObs) LogInfo(msg string, fields ...ports.Field) {}
func (m *mockObs) LogWarn(msg string, fields ...ports.Field) {}
func (m *mockObs) LogError(msg string, err error, fields ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, msg)
}
func (m *mockObs) LogCritical(msg string, err error, fields ...ports.Field) {
	m.LogError(msg, err, fields...)
}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(name string, seconds float64) {}
func (m *mockObs) SetGauge(name string, v float64)            {}
func (m *mockObs) RecordDrop(rawLine string, err error) {
	m.IncCounter("relay_parse_errors_total", 1)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	calls     int
	published [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transport unavailable")
	}
	f.published = append(f.published, append([]byte(nil), data...))
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func fastPolicy() ports.Policy {
	return ports.Policy{
		MaxBatchSize:   10,
		IdleSleep:      time.Millisecond,
		PublishTimeout: time.Second,
		BackoffBase:    time.Millisecond,
		BackoffMax:     4 * time.Millisecond,
	}
}

func TestPumpRetriesThenAcknowledgesOnce(t *testing.T) {
	q := queue.NewMemQueue(queue.Options{})
	pub := &fakePublisher{failures: 3}
	obs := newMockObs()

	entry, err := q.Enqueue(&domain.Reading{MetricName: "temp", Value: 42.5, TimestampMs: 1000})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPublisherPump(ctx, q, pub, "src", fastPolicy(), obs)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for pub.publishedCount() < 1 {
		select {
		case <-deadline:
			t.Fatalf("publish never succeeded")
		case <-time.After(time.Millisecond):
		}
	}
	// let any erroneous extra publish happen
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if got := pub.publishedCount(); got != 1 {
		t.Fatalf("expected exactly 1 successful publish, got %d", got)
	}
	if entry.AttemptCount != 4 {
		t.Fatalf("expected attempt count 4, got %d", entry.AttemptCount)
	}
	if pending := q.Stats().Pending; pending != 0 {
		t.Fatalf("expected acknowledged queue, %d pending", pending)
	}
	if got := obs.counter("relay_publish_retries_total"); got != 3 {
		t.Fatalf("expected 3 retries recorded, got %f", got)
	}
	if got := obs.counter("relay_published_total"); got != 1 {
		t.Fatalf("expected 1 publish recorded, got %f", got)
	}
}

func TestPumpPublishesInSequenceOrder(t *testing.T) {
	q := queue.NewMemQueue(queue.Options{})
	pub := &fakePublisher{}
	obs := newMockObs()

	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(&domain.Reading{MetricName: "temp", Value: float64(i), TimestampMs: int64(i)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPublisherPump(ctx, q, pub, "src", fastPolicy(), obs)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for pub.publishedCount() < 5 {
		select {
		case <-deadline:
			t.Fatalf("publishes incomplete: %d", pub.publishedCount())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	var last uint64
	for i, data := range pub.published {
		env, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("decode published envelope %d: %v", i, err)
		}
		if env.Seq <= last {
			t.Fatalf("sequence order violated: %d after %d", env.Seq, last)
		}
		last = env.Seq
	}
}

type ackFailQueue struct {
	*queue.MemQueue
	mu       sync.Mutex
	failures int
}

func (q *ackFailQueue) Acknowledge(seq uint64) error {
	q.mu.Lock()
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return errors.New("meta write failed")
	}
	q.mu.Unlock()
	return q.MemQueue.Acknowledge(seq)
}

func TestPumpAckFailureKeepsSequenceOrder(t *testing.T) {
	q := &ackFailQueue{MemQueue: queue.NewMemQueue(queue.Options{}), failures: 1}
	pub := &fakePublisher{}
	obs := newMockObs()

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(&domain.Reading{MetricName: "temp", Value: float64(i), TimestampMs: int64(i)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPublisherPump(ctx, q, pub, "src", fastPolicy(), obs)
		close(done)
	}()

	// the failed ack forces one republication of seq 1, so 4 total
	deadline := time.After(5 * time.Second)
	for pub.publishedCount() < 4 {
		select {
		case <-deadline:
			t.Fatalf("publishes incomplete: %d", pub.publishedCount())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	var last uint64
	for i, data := range pub.published {
		env, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("decode published envelope %d: %v", i, err)
		}
		if env.Seq < last {
			t.Fatalf("sequence order violated: %d after %d", env.Seq, last)
		}
		last = env.Seq
	}

	if pending := q.Stats().Pending; pending != 0 {
		t.Fatalf("expected drained queue, %d pending", pending)
	}
}

func TestPumpLeavesEntriesOnShutdown(t *testing.T) {
	q := queue.NewMemQueue(queue.Options{})
	pub := &fakePublisher{failures: 1 << 30}
	obs := newMockObs()

	if _, err := q.Enqueue(&domain.Reading{MetricName: "temp", Value: 1.0}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPublisherPump(ctx, q, pub, "src", fastPolicy(), obs)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pump did not stop on cancellation")
	}

	if pending := q.Stats().Pending; pending != 1 {
		t.Fatalf("expected entry retained for next run, %d pending", pending)
	}
}
