package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tokligence/tokligence-iosched/internal/ledger"
)

func TestStoreRecordAndLatest(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	record := func(device, queue string, idx int, enq, deq int64) {
		if err := store.Record(ctx, ledger.Entry{
			Device:     device,
			Queue:      queue,
			QueueIndex: idx,
			Enqueued:   enq,
			Dequeued:   deq,
			Backlog:    enq - deq,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	record("sda", "rt0", 0, 1, 0)
	record("sda", "be", 8, 5, 2)
	record("sda", "rt0", 0, 4, 4)
	record("sdb", "be", 8, 100, 0)

	latest, err := store.Latest(ctx, "sda")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 queues, got %d", len(latest))
	}
	if latest[0].Queue != "rt0" || latest[0].Enqueued != 4 || latest[0].Backlog != 0 {
		t.Fatalf("unexpected rt0 entry %+v", latest[0])
	}
	if latest[1].Queue != "be" || latest[1].Backlog != 3 {
		t.Fatalf("unexpected be entry %+v", latest[1])
	}
	if latest[0].CreatedAt.IsZero() {
		t.Fatalf("created_at not defaulted")
	}
}

func TestHistoryOrdering(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		if err := store.Record(ctx, ledger.Entry{Device: "sda", Queue: "idle", QueueIndex: 9, Enqueued: i, Backlog: i}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	history, err := store.History(ctx, "sda", "idle", 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, want := range []int64{5, 4, 3} {
		if history[i].Enqueued != want {
			t.Fatalf("entry %d: enqueued %d, want %d", i, history[i].Enqueued, want)
		}
	}
}

func TestRecordRejectsInvalidEntry(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Record(context.Background(), ledger.Entry{Queue: "be"}); err == nil {
		t.Fatalf("expected error for entry without device")
	}
	if _, err := store.Latest(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty device")
	}
}
