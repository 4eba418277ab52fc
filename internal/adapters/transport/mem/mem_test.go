package mem

import (
	"context"
	"testing"
	"time"

	"github.com/rd-openday18/pubsub/internal/ports"
)

func TestPublishThenReceive(t *testing.T) {
	tr := New(8)
	defer tr.Close()

	for _, s := range []string{"a", "b", "c"} {
		if err := tr.Publish(context.Background(), []byte(s)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := tr.Receive(ctx, func(_ context.Context, d ports.Delivery) {
		got = append(got, string(d.Data))
		d.Ack()
		if len(got) == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got %v, want [a b c]", got)
	}
}

func TestNackRedelivers(t *testing.T) {
	tr := New(8)
	defer tr.Close()

	tr.Inject([]byte("payload"))

	ctx, cancel := context.WithCancel(context.Background())
	deliveries := 0
	err := tr.Receive(ctx, func(_ context.Context, d ports.Delivery) {
		deliveries++
		if deliveries == 1 {
			d.Nack()
			return
		}
		d.Ack()
		cancel()
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if deliveries != 2 {
		t.Fatalf("deliveries = %d, want 2", deliveries)
	}
}

func TestNackRedeliversWhenBufferFull(t *testing.T) {
	tr := New(1)
	defer tr.Close()

	tr.Inject([]byte("first"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := map[string]int{}
	err := tr.Receive(ctx, func(_ context.Context, d ports.Delivery) {
		seen[string(d.Data)]++
		if string(d.Data) == "first" && seen["first"] == 1 {
			// fill the buffer before nacking so the requeue has no room
			tr.Inject([]byte("second"))
			d.Nack()
			return
		}
		d.Ack()
		if seen["first"] == 2 && seen["second"] == 1 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if seen["first"] != 2 {
		t.Fatalf("nacked message delivered %d times, want 2", seen["first"])
	}
	if seen["second"] != 1 {
		t.Fatalf("second message delivered %d times, want 1", seen["second"])
	}
}

func TestPublishAfterClose(t *testing.T) {
	tr := New(1)
	tr.Close()
	if err := tr.Publish(context.Background(), []byte("x")); err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestReceiveStopsOnCancel(t *testing.T) {
	tr := New(1)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tr.Receive(ctx, func(context.Context, ports.Delivery) {})
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after cancel")
	}
}
