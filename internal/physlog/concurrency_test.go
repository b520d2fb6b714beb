package physlog

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
)

func TestConcurrentAppendsAreLinearized(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.MaxExtents = 32
	c := openTestContainer(t, t.TempDir(), opts)
	defer c.Close(ctx)
	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")

	const writers, perWriter, size = 4, 25, 10
	tails := make(chan uint64, writers*perWriter)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			chunk := bytes.Repeat([]byte{byte('a' + w)}, size)
			for i := 0; i < perWriter; i++ {
				tail, err := s.Append(ctx, chunk)
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
				tails <- tail
			}
		}(w)
	}
	wg.Wait()
	close(tails)

	seen := make(map[uint64]bool)
	for tail := range tails {
		if tail%size != 0 || seen[tail] {
			t.Fatalf("tail %d duplicated or misaligned", tail)
		}
		seen[tail] = true
	}
	if s.Tail() != writers*perWriter*size {
		t.Fatalf("tail %d", s.Tail())
	}
	// every chunk landed whole
	got, _ := s.Read(ctx, 0, int(s.Tail()))
	for off := 0; off < len(got); off += size {
		if !bytes.Equal(got[off:off+size], bytes.Repeat(got[off:off+1], size)) {
			t.Fatalf("interleaved chunk at %d", off)
		}
	}
}

func TestHeadTruncationQuarantinesExtentsUnderRead(t *testing.T) {
	ctx := context.Background()
	c := openTestContainer(t, t.TempDir(), testOptions())
	defer c.Close(ctx)
	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	mustAppend(t, s, pattern(3*64))
	free := c.Usage().FreeExtents

	// hold a read open across the truncation
	if _, err := s.beginRead(); err != nil {
		t.Fatalf("begin read: %v", err)
	}
	if err := s.TruncateHead(ctx, 2*64); err != nil {
		t.Fatalf("truncate head: %v", err)
	}
	if got := c.Usage().FreeExtents; got != free {
		t.Fatalf("extents freed under an active read: %d free, want %d", got, free)
	}
	s.endRead()
	if got := c.Usage().FreeExtents; got != free+2 {
		t.Fatalf("quarantine not released: %d free, want %d", got, free+2)
	}
}

func TestReadsDuringHeadTruncation(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.MaxExtents = 32
	c := openTestContainer(t, t.TempDir(), opts)
	defer c.Close(ctx)
	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	data := pattern(30 * 64)
	mustAppend(t, s, data)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				head := s.Head()
				got, err := s.Read(ctx, head, 200)
				if errors.Is(err, ErrBelowHead) {
					continue
				}
				if err != nil {
					t.Errorf("read: %v", err)
					return
				}
				if !bytes.Equal(got, data[head:head+uint64(len(got))]) {
					t.Errorf("read at %d returned wrong bytes", head)
					return
				}
			}
		}()
	}
	for head := uint64(50); head < uint64(len(data)); head += 50 {
		if err := s.TruncateHead(ctx, head); err != nil {
			t.Fatalf("truncate head: %v", err)
		}
	}
	close(done)
	wg.Wait()
	if free := c.Usage().FreeExtents; free != 31 {
		t.Fatalf("free extents %d, want 31", free)
	}
}

func TestIntervalSyncerStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	dir := t.TempDir()
	opts := testOptions()
	opts.Durability = pebblestore.FsyncModeInterval
	opts.SyncInterval = time.Millisecond
	c := openTestContainer(t, dir, opts)
	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	mustAppend(t, s, []byte("interval"))
	deadline := time.Now().Add(2 * time.Second)
	for c.dirty.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("syncer did not clear the dirty flag")
		}
		time.Sleep(time.Millisecond)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	c = openTestContainer(t, dir, Options{})
	defer c.Close(ctx)
	s, _ = c.OpenLogicalStream(ctx, streamID(1), "")
	got, _ := s.Read(ctx, 0, 100)
	if string(got) != "interval" {
		t.Fatalf("read %q after reopen", got)
	}
}
