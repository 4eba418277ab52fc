package ports

import "context"

// Publisher sends serialized envelopes to the transport topic. Publish
// blocks until the transport confirms receipt or ctx expires; an error
// (including a timeout) is retryable, never fatal.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
	Close() error
}

// Delivery is one at-least-once message pulled from a subscription.
// Ack confirms processing; Nack requests redelivery.
type Delivery struct {
	ID   string
	Data []byte
	Ack  func()
	Nack func()
}

// Subscriber streams deliveries from the transport subscription until
// ctx is cancelled. Redelivery and reordering are allowed; handlers
// must be idempotent.
type Subscriber interface {
	Receive(ctx context.Context, handle func(context.Context, Delivery)) error
	Close() error
}
