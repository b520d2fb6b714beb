package physlog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
)

// hookStore wraps the extent file and runs onSync before every Sync.
type hookStore struct {
	ExtentStore
	onSync func()
}

func (h *hookStore) Sync() error {
	if h.onSync != nil {
		h.onSync()
	}
	return h.ExtentStore.Sync()
}

func hookedOptions(h *hookStore) Options {
	opts := testOptions()
	opts.openStore = func(path string, create bool, size int64) (ExtentStore, error) {
		f, err := openExtentFile(path, create, size)
		if err != nil {
			return nil, err
		}
		h.ExtentStore = f
		return h, nil
	}
	return opts
}

// reopenWithoutMeta closes c, drops its metadata and reopens the container
// so that every stream is rebuilt from extent headers.
func reopenWithoutMeta(t *testing.T, c *Container, dir string) *Container {
	t.Helper()
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, metaDirName)); err != nil {
		t.Fatalf("remove meta: %v", err)
	}
	return openTestContainer(t, dir, Options{})
}

func TestCancelledAppendIsNotRebuilt(t *testing.T) {
	tests := []struct {
		name      string
		committed []byte
		cancelled []byte
	}{
		{name: "within extent", committed: []byte("committed"), cancelled: []byte("CANCELLED")},
		{name: "spanning extents", committed: pattern(60), cancelled: pattern(100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			h := &hookStore{}
			c := openTestContainer(t, dir, hookedOptions(h))
			s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
			mustAppend(t, s, tt.committed)
			free := c.Usage().FreeExtents

			actx, cancel := context.WithCancel(ctx)
			h.onSync = cancel
			if _, err := s.Append(actx, tt.cancelled); !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			h.onSync = nil
			if s.Tail() != uint64(len(tt.committed)) || c.Usage().FreeExtents != free {
				t.Fatalf("cancelled append changed state: tail %d free %d", s.Tail(), c.Usage().FreeExtents)
			}

			c = reopenWithoutMeta(t, c, dir)
			defer c.Close(ctx)
			s, err := c.OpenLogicalStream(ctx, streamID(1), "")
			if err != nil {
				t.Fatalf("open rebuilt stream: %v", err)
			}
			if s.Tail() != uint64(len(tt.committed)) {
				t.Fatalf("tail after rebuild %d, want %d", s.Tail(), len(tt.committed))
			}
			got, err := s.Read(ctx, 0, 1000)
			if err != nil || !bytes.Equal(got, tt.committed) {
				t.Fatalf("rebuilt data %q %v", got, err)
			}
			if c.Usage().FreeExtents != free {
				t.Fatalf("free extents after rebuild %d, want %d", c.Usage().FreeExtents, free)
			}
		})
	}
}

func TestCancelledStructuralChangesAreNotRebuilt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	h := &hookStore{}
	c := openTestContainer(t, dir, hookedOptions(h))
	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	data := pattern(300)
	mustAppend(t, s, data)
	if err := c.CreateLogicalStream(ctx, streamID(2), ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	free := c.Usage().FreeExtents

	cancelled := func(name string, op func(ctx context.Context) error) {
		t.Helper()
		actx, cancel := context.WithCancel(ctx)
		h.onSync = cancel
		defer func() { h.onSync = nil }()
		if err := op(actx); !errors.Is(err, context.Canceled) {
			t.Fatalf("%s: expected context.Canceled, got %v", name, err)
		}
	}
	cancelled("truncate tail", func(ctx context.Context) error { return s.TruncateTail(ctx, 120) })
	cancelled("truncate head", func(ctx context.Context) error { return s.TruncateHead(ctx, 130) })
	cancelled("delete", func(ctx context.Context) error { return c.DeleteLogicalStream(ctx, streamID(2)) })
	cancelled("create", func(ctx context.Context) error { return c.CreateLogicalStream(ctx, streamID(3), "") })

	if s.Head() != 0 || s.Tail() != 300 || c.Usage().FreeExtents != free || len(c.Streams()) != 2 {
		t.Fatalf("cancelled operations changed state: [%d, %d) free %d streams %d",
			s.Head(), s.Tail(), c.Usage().FreeExtents, len(c.Streams()))
	}
	// the handle is still live
	if tail := mustAppend(t, s, []byte("z")); tail != 301 {
		t.Fatalf("tail %d, want 301", tail)
	}
	data = append(data, 'z')

	c = reopenWithoutMeta(t, c, dir)
	defer c.Close(ctx)
	s, err := c.OpenLogicalStream(ctx, streamID(1), "")
	if err != nil {
		t.Fatalf("open rebuilt stream: %v", err)
	}
	got, err := s.Read(ctx, 0, 1000)
	if err != nil || s.Head() != 0 || !bytes.Equal(got, data) {
		t.Fatalf("rebuilt stream [%d, %d) %v", s.Head(), s.Tail(), err)
	}
	ids := map[string]bool{}
	for _, info := range c.Streams() {
		ids[info.ID.String()] = true
	}
	if len(ids) != 2 || !ids[streamID(2).String()] || ids[streamID(3).String()] {
		t.Fatalf("unexpected streams after rebuild %+v", c.Streams())
	}
}

// syncLog records the order in which the extent file and the metadata WAL
// are synced.
type syncLog struct {
	mu     sync.Mutex
	events []string
}

func (l *syncLog) add(ev string) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *syncLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev := l.events
	l.events = nil
	return ev
}

func TestIntervalModeSyncsDataBeforeMetadata(t *testing.T) {
	ctx := context.Background()
	var log syncLog
	h := &hookStore{onSync: func() { log.add("data") }}
	opts := hookedOptions(h)
	opts.Durability = pebblestore.FsyncModeInterval
	opts.SyncInterval = time.Hour
	c := openTestContainer(t, t.TempDir(), opts)
	defer c.Close(ctx)
	syncMeta := c.syncMeta
	c.syncMeta = func() error {
		log.add("meta")
		return syncMeta()
	}
	log.take()

	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	start := time.Now()
	for i := 0; i < 5; i++ {
		mustAppend(t, s, pattern(50))
	}
	if elapsed := time.Since(start); elapsed > time.Minute {
		t.Fatalf("appends waited on the sync interval: %v", elapsed)
	}
	if ev := log.take(); len(ev) != 0 {
		t.Fatalf("appends synced in interval mode: %v", ev)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if ev := log.take(); !reflect.DeepEqual(ev, []string{"data", "meta"}) {
		t.Fatalf("flush sync order %v, want [data meta]", ev)
	}
}

func TestAlwaysModeSyncsDataOnAppend(t *testing.T) {
	ctx := context.Background()
	var log syncLog
	h := &hookStore{onSync: func() { log.add("data") }}
	c := openTestContainer(t, t.TempDir(), hookedOptions(h))
	defer c.Close(ctx)
	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	log.take()

	mustAppend(t, s, []byte("durable"))
	if ev := log.take(); !reflect.DeepEqual(ev, []string{"data"}) {
		t.Fatalf("append syncs %v, want [data]", ev)
	}
}
