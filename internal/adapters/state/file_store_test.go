package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rd-openday18/pubsub/internal/domain"
)

func TestFileStoreRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.snap")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	if err := store.WriteMetric(ctx, "temp", domain.MetricState{LastValue: 42.5, LastTimestampMs: 1000, LastSeq: 3}); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if err := store.WriteMetric(ctx, "status", domain.MetricState{LastValue: "ok", LastSeq: 4}); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()

	snap, err := store2.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(snap) != 2 || snap["temp"].LastSeq != 3 {
		t.Fatalf("snapshot not restored: %+v", snap)
	}
	if v, ok := snap["status"].LastValue.(string); !ok || v != "ok" {
		t.Fatalf("unexpected status value: %v", snap["status"].LastValue)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent.snap"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	defer store.Close()

	snap, err := store.ReadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap == nil || len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap)
	}
}

func TestFileStoreSnapshotsAreCopies(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.snap"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.WriteMetric(ctx, "temp", domain.MetricState{LastValue: 1.0, LastSeq: 1}); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	snap, _ := store.ReadSnapshot(ctx)
	snap["temp"] = domain.MetricState{LastValue: 999.0, LastSeq: 999}

	again, _ := store.ReadSnapshot(ctx)
	if again["temp"].LastSeq != 1 {
		t.Fatalf("external mutation leaked into store: %+v", again["temp"])
	}
}
