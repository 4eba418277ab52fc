package queue

import "testing"

func TestMemQueueOrderingAndAck(t *testing.T) {
	q := NewMemQueue(Options{})

	e1, err := q.Enqueue(reading("temp", 1))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	e2, _ := q.Enqueue(reading("temp", 2))
	if e2.Seq != e1.Seq+1 {
		t.Fatalf("sequence ids not increasing")
	}

	if err := q.Acknowledge(e1.Seq); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := q.Acknowledge(e1.Seq); err != nil {
		t.Fatalf("repeat ack: %v", err)
	}

	batch, _ := q.PeekBatch(10)
	if len(batch) != 1 || batch[0].Seq != e2.Seq {
		t.Fatalf("unexpected pending: %+v", batch)
	}
}

func TestMemQueueBounded(t *testing.T) {
	q := NewMemQueue(Options{MaxLen: 1, OnFull: "reject"})
	if _, err := q.Enqueue(reading("a", 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(reading("b", 2)); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	drop := NewMemQueue(Options{MaxLen: 1, OnFull: "drop_oldest"})
	e1, _ := drop.Enqueue(reading("a", 1))
	var droppedSeq uint64
	drop.OnDrop(func(seq uint64) { droppedSeq = seq })
	e2, err := drop.Enqueue(reading("b", 2))
	if err != nil {
		t.Fatalf("enqueue with drop_oldest: %v", err)
	}
	if droppedSeq != e1.Seq {
		t.Fatalf("expected %d dropped, got %d", e1.Seq, droppedSeq)
	}
	batch, _ := drop.PeekBatch(10)
	if len(batch) != 1 || batch[0].Seq != e2.Seq {
		t.Fatalf("unexpected pending: %+v", batch)
	}
}
