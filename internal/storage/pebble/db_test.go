package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

type testMetrics struct {
	wrote        int
	read         int
	batchCommits int
	batchOps     int
	batchBytes   int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(d time.Duration, bytes int)  { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(d time.Duration, numOps int, bytes int) {
	m.batchCommits++
	m.batchOps += numOps
	m.batchBytes += bytes
}

func newTestDB(t *testing.T, mode FsyncMode) (*DB, *testMetrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       dir,
		Fsync:         mode,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
		Logger:        logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestCRUD(t *testing.T) {
	db, metrics := newTestDB(t, FsyncModeInterval)

	key := []byte("s/k1")
	val := []byte("v1")
	if err := db.Set(key, val); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, val) {
		t.Fatalf("got %q want %q", got, val)
	}
	if metrics.read == 0 || metrics.wrote == 0 {
		t.Fatalf("expected read and write metrics, got %+v", metrics)
	}
	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBatchCommitMetrics(t *testing.T) {
	db, metrics := newTestDB(t, FsyncModeAlways)

	b := db.NewBatch()
	if err := b.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if metrics.batchCommits != 1 || metrics.batchOps != 2 {
		t.Fatalf("want 1 commit of 2 ops, got %+v", metrics)
	}
	if metrics.batchBytes <= 0 {
		t.Fatalf("expected positive batch bytes")
	}
}

func TestCommitBatchCancelled(t *testing.T) {
	db, _ := newTestDB(t, FsyncModeAlways)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := db.NewBatch()
	defer b.Close()
	_ = b.Set([]byte("k"), []byte("v"), nil)
	if err := db.CommitBatch(ctx, b); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancelled batch must not be visible, got %v", err)
	}
}

func TestSyncNeverMode(t *testing.T) {
	db, _ := newTestDB(t, FsyncModeNever)
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestErrorIfNotExists(t *testing.T) {
	_, err := Open(Options{DataDir: t.TempDir() + "/missing", ErrorIfNotExists: true})
	if err == nil {
		t.Fatalf("expected error opening missing db")
	}
}

func TestSnapshotConsistency(t *testing.T) {
	db, _ := newTestDB(t, FsyncModeAlways)

	key := []byte("k2")
	if err := db.Set(key, []byte("old")); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap := db.NewSnapshot()
	defer snap.Close()

	if err := db.Set(key, []byte("new")); err != nil {
		t.Fatalf("set: %v", err)
	}
	valOld, closer, err := snap.Get(key)
	if err != nil {
		t.Fatalf("snap get: %v", err)
	}
	if string(valOld) != "old" {
		t.Fatalf("snapshot saw %q want %q", valOld, "old")
	}
	closer.Close()
}

func TestParseFsyncMode(t *testing.T) {
	for _, m := range []FsyncMode{FsyncModeAlways, FsyncModeInterval, FsyncModeNever} {
		got, err := ParseFsyncMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParseFsyncMode(%q)=(%v,%v)", m.String(), got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
