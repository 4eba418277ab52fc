// Package mem is an in-process transport with at-least-once semantics,
// used by tests and local development. Nacked deliveries are requeued,
// so consumers see duplicates exactly as they would from the real
// service.
package mem

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/rd-openday18/pubsub/internal/ports"
)

var ErrClosed = errors.New("mem transport: closed")

// Transport is a single topic with a single subscription.
type Transport struct {
	mu     sync.Mutex
	nextID int
	queue  chan message
	closed bool
}

type message struct {
	id   string
	data []byte
}

func New(buffer int) *Transport {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Transport{queue: make(chan message, buffer)}
}

func (t *Transport) Publish(ctx context.Context, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.nextID++
	msg := message{id: strconv.Itoa(t.nextID), data: append([]byte(nil), data...)}
	t.mu.Unlock()

	select {
	case t.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive delivers messages until ctx is cancelled. Handlers run one
// at a time on the calling goroutine.
func (t *Transport) Receive(ctx context.Context, handle func(context.Context, ports.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-t.queue:
			t.deliver(ctx, msg, handle)
		}
	}
}

func (t *Transport) deliver(ctx context.Context, msg message, handle func(context.Context, ports.Delivery)) {
	var done bool
	handle(ctx, ports.Delivery{
		ID:   msg.id,
		Data: msg.data,
		Ack:  func() { done = true },
		Nack: func() { done = false },
	})
	if !done {
		// redelivery, possibly after other messages; requeue from a
		// goroutine so a full buffer cannot drop the message or stall
		// the receive loop that has to drain it
		select {
		case t.queue <- msg:
		default:
			go func() {
				select {
				case t.queue <- msg:
				case <-ctx.Done():
				}
			}()
		}
	}
}

// Inject enqueues raw bytes directly, bypassing Publish bookkeeping.
// Tests use it to simulate duplicates and malformed payloads.
func (t *Transport) Inject(data []byte) {
	t.mu.Lock()
	t.nextID++
	id := strconv.Itoa(t.nextID)
	t.mu.Unlock()
	t.queue <- message{id: id, data: append([]byte(nil), data...)}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

var (
	_ ports.Publisher  = (*Transport)(nil)
	_ ports.Subscriber = (*Transport)(nil)
)
