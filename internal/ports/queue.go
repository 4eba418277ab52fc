package ports

import (
	"errors"

	"github.com/rd-openday18/pubsub/internal/domain"
)

// ErrQueueFull indicates the queue rejected an entry under its
// capacity policy.
var ErrQueueFull = errors.New("queue full")

// DurableQueue buffers readings that have not yet been confirmed by
// the transport. Enqueue must persist the entry before returning so a
// crash after Enqueue cannot lose it (the memory implementation is an
// explicit reduced-durability mode). All methods are safe for
// concurrent use by the ingest loop and the publisher pump.
type DurableQueue interface {
	// Enqueue assigns the next sequence id and persists the entry.
	Enqueue(r *domain.Reading) (*domain.QueueEntry, error)

	// PeekBatch returns up to max unacknowledged entries in ascending
	// sequence order without removing them.
	PeekBatch(max int) ([]*domain.QueueEntry, error)

	// Acknowledge removes the entry with the given sequence id.
	// Acknowledging an unknown or already-removed id is a no-op.
	Acknowledge(seq uint64) error

	// MarkAttempt increments the entry's attempt count and returns the
	// new value. Unknown ids return 0.
	MarkAttempt(seq uint64) int

	Stats() QueueStats
	Close() error
}

type QueueStats struct {
	Pending   int
	NextSeq   uint64
	AckedUpTo uint64
	SizeBytes int64
	Durable   bool
}
