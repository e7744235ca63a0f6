package statlog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kvmdb/kdbcache/internal/statlog"
	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stats.sqlite")

	log, err := statlog.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	defer func() { _ = log.Close() }()

	snaps := []pagecache.Snapshot{
		{TotalFaults: 1, AllocatedLP: 1},
		{TotalFaults: 5, TotalMkwrite: 2, DirtyPages: 2, AllocatedLP: 3},
	}

	for _, snap := range snaps {
		if err := log.Record(ctx, "bench", snap); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if err := log.Record(ctx, "other", pagecache.Snapshot{TotalFaults: 9}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := log.Recent(ctx, "bench", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("got %d entries for label bench, want 2", len(entries))
	}

	// Newest first.
	if entries[0].Snap.TotalFaults != 5 || entries[1].Snap.TotalFaults != 1 {
		t.Errorf("order wrong: %d then %d, want 5 then 1",
			entries[0].Snap.TotalFaults, entries[1].Snap.TotalFaults)
	}

	all, err := log.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent all: %v", err)
	}

	if len(all) != 3 {
		t.Errorf("got %d entries for all labels, want 3", len(all))
	}
}

func TestReopenKeepsSchemaAndData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stats.sqlite")

	log, err := statlog.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := log.Record(ctx, "run", pagecache.Snapshot{TotalFaults: 7}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	log, err = statlog.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	defer func() { _ = log.Close() }()

	entries, err := log.Recent(ctx, "run", 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	if len(entries) != 1 || entries[0].Snap.TotalFaults != 7 {
		t.Errorf("data lost across reopen: %+v", entries)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := statlog.Open(context.Background(), ""); err == nil {
		t.Fatal("Open with empty path must fail")
	}
}
