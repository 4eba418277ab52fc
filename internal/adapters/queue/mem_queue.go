package queue

import (
	"sync"
	"time"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

// MemQueue is the reduced-durability mode used when no queue directory
// is configured: same contract as FileQueue, but entries do not
// survive a crash.
type MemQueue struct {
	mu      sync.Mutex
	opts    Options
	dropped func(seq uint64)

	nextSeq   uint64
	ackedUpTo uint64
	pending   []*domain.QueueEntry
	index     map[uint64]*domain.QueueEntry
}

func NewMemQueue(opts Options) *MemQueue {
	return &MemQueue{
		opts:  opts,
		index: make(map[uint64]*domain.QueueEntry),
	}
}

// OnDrop installs a callback invoked when drop_oldest evicts an entry.
func (q *MemQueue) OnDrop(fn func(seq uint64)) {
	q.mu.Lock()
	q.dropped = fn
	q.mu.Unlock()
}

func (q *MemQueue) Enqueue(r *domain.Reading) (*domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.opts.MaxLen > 0 && len(q.pending) >= q.opts.MaxLen {
		if q.opts.OnFull != "drop_oldest" || len(q.pending) == 0 {
			return nil, ErrQueueFull
		}
		oldest := q.pending[0]
		q.pending = q.pending[1:]
		delete(q.index, oldest.Seq)
		if q.dropped != nil {
			q.dropped(oldest.Seq)
		}
	}

	q.nextSeq++
	entry := &domain.QueueEntry{
		Seq:          q.nextSeq,
		Reading:      *r,
		EnqueuedAtMs: time.Now().UnixMilli(),
	}
	q.pending = append(q.pending, entry)
	q.index[entry.Seq] = entry
	return entry, nil
}

func (q *MemQueue) PeekBatch(max int) ([]*domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	if max <= 0 || max > len(q.pending) {
		max = len(q.pending)
	}
	out := make([]*domain.QueueEntry, max)
	copy(out, q.pending[:max])
	return out, nil
}

func (q *MemQueue) Acknowledge(seq uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[seq]; !ok {
		return nil
	}
	delete(q.index, seq)
	for i, e := range q.pending {
		if e.Seq == seq {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	if seq > q.ackedUpTo {
		q.ackedUpTo = seq
	}
	return nil
}

func (q *MemQueue) MarkAttempt(seq uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[seq]
	if !ok {
		return 0
	}
	e.AttemptCount++
	return e.AttemptCount
}

func (q *MemQueue) Stats() ports.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ports.QueueStats{
		Pending:   len(q.pending),
		NextSeq:   q.nextSeq + 1,
		AckedUpTo: q.ackedUpTo,
		Durable:   false,
	}
}

func (q *MemQueue) Close() error { return nil }

var _ ports.DurableQueue = (*MemQueue)(nil)
