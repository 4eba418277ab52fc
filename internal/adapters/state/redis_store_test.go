package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/rd-openday18/pubsub/internal/domain"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStoreWriteReadMetric(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	st := domain.MetricState{LastValue: 42.5, LastTimestampMs: 1000, LastSeq: 7, SourceID: "s1"}
	if err := store.WriteMetric(ctx, "temp", st); err != nil {
		t.Fatalf("write metric: %v", err)
	}

	snap, err := store.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	got, ok := snap["temp"]
	if !ok {
		t.Fatalf("metric temp missing from snapshot")
	}
	if got.LastSeq != 7 || got.LastTimestampMs != 1000 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if v, ok := got.LastValue.(float64); !ok || v != 42.5 {
		t.Fatalf("unexpected value: %v", got.LastValue)
	}
}

func TestRedisStoreSnapshotReplacesState(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.WriteMetric(ctx, "old", domain.MetricState{LastValue: "x", LastSeq: 1}); err != nil {
		t.Fatalf("write metric: %v", err)
	}

	next := domain.SystemState{
		"temp": {LastValue: 1.0, LastSeq: 2},
		"hum":  {LastValue: 2.0, LastSeq: 3},
	}
	if err := store.WriteSnapshot(ctx, next); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	snap, err := store.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected snapshot to replace state, got %+v", snap)
	}
	if _, ok := snap["old"]; ok {
		t.Fatalf("stale metric survived snapshot write")
	}
}

func TestRedisStoreEmptySnapshot(t *testing.T) {
	store := newTestRedisStore(t)

	snap, err := store.ReadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap == nil || len(snap) != 0 {
		t.Fatalf("expected empty non-nil snapshot, got %v", snap)
	}
}
