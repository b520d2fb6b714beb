package physlog

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"

	mockphyslog "github.com/rzbill/sharedlog/internal/mock/physlog"
)

var errInjected = errors.New("injected write failure")

// faultyStore backs a mock ExtentStore with the real file and fails writes
// or syncs while the corresponding switch is on.
func faultyStore(ctrl *gomock.Controller, failWrites, failSync *atomic.Bool) func(string, bool, int64) (ExtentStore, error) {
	return func(path string, create bool, size int64) (ExtentStore, error) {
		f, err := openExtentFile(path, create, size)
		if err != nil {
			return nil, err
		}
		m := mockphyslog.NewMockExtentStore(ctrl)
		m.EXPECT().ReadAt(gomock.Any(), gomock.Any()).DoAndReturn(f.ReadAt).AnyTimes()
		m.EXPECT().WriteAt(gomock.Any(), gomock.Any()).DoAndReturn(func(p []byte, off int64) (int, error) {
			if failWrites.Load() {
				return 0, errInjected
			}
			return f.WriteAt(p, off)
		}).AnyTimes()
		m.EXPECT().Sync().DoAndReturn(func() error {
			if failSync.Load() {
				return errInjected
			}
			return f.Sync()
		}).AnyTimes()
		m.EXPECT().Close().DoAndReturn(f.Close).Times(1)
		return m, nil
	}
}

func TestAppendSurfacesIOFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var failWrites, failSync atomic.Bool
	opts := testOptions()
	opts.openStore = faultyStore(ctrl, &failWrites, &failSync)
	ctx := context.Background()
	c := openTestContainer(t, t.TempDir(), opts)
	defer c.Close(ctx)

	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	mustAppend(t, s, []byte("ok"))
	free, gen := c.Usage().FreeExtents, c.Generation()

	failWrites.Store(true)
	_, err := s.Append(ctx, pattern(100))
	var ioe *IOError
	if !errors.Is(err, ErrIOFailure) || !errors.As(err, &ioe) || !errors.Is(err, errInjected) {
		t.Fatalf("expected IOError wrapping the injected failure, got %v", err)
	}
	if s.Tail() != 2 || c.Usage().FreeExtents != free || c.Generation() != gen {
		t.Fatalf("failed append changed state: tail %d free %d gen %d", s.Tail(), c.Usage().FreeExtents, c.Generation())
	}
	failWrites.Store(false)

	if tail := mustAppend(t, s, []byte("!")); tail != 3 {
		t.Fatalf("tail %d after recovery, want 3", tail)
	}
	got, err := s.Read(ctx, 0, 10)
	if err != nil || string(got) != "ok!" {
		t.Fatalf("read %q %v", got, err)
	}

	// the header rollback cannot be made durable either
	failSync.Store(true)
	if _, err := s.Append(ctx, []byte("x")); !errors.Is(err, ErrIOFailure) {
		t.Fatalf("expected sync failure to surface, got %v", err)
	}
	if err := c.Err(); !errors.Is(err, ErrUnrecoverable) {
		t.Fatalf("expected container to be unusable, got %v", err)
	}
	if err := s.TruncateHead(ctx, 1); !errors.Is(err, ErrUnrecoverable) {
		t.Fatalf("expected ErrUnrecoverable, got %v", err)
	}
	if s.Tail() != 3 {
		t.Fatalf("tail %d, want 3", s.Tail())
	}
}

func TestFailedTailTruncationKeepsStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var failWrites, failSync atomic.Bool
	opts := testOptions()
	opts.openStore = faultyStore(ctrl, &failWrites, &failSync)
	ctx := context.Background()
	dir := t.TempDir()
	c := openTestContainer(t, dir, opts)

	s, _ := c.OpenLogicalStream(ctx, streamID(1), "")
	data := pattern(200)
	mustAppend(t, s, data)

	failWrites.Store(true)
	if err := s.TruncateTail(ctx, 10); !errors.Is(err, ErrIOFailure) {
		t.Fatalf("expected ErrIOFailure, got %v", err)
	}
	if !errors.Is(c.Err(), ErrUnrecoverable) {
		t.Fatalf("unrestorable headers should mark the container unusable, got %v", c.Err())
	}
	failWrites.Store(false)
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	c = openTestContainer(t, dir, testOptions())
	defer c.Close(ctx)
	s, err := c.OpenLogicalStream(ctx, streamID(1), "")
	if err != nil {
		t.Fatalf("reopen stream: %v", err)
	}
	got, err := s.Read(ctx, 0, 1000)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("stream changed by failed truncation: %d bytes, %v", len(got), err)
	}
}
