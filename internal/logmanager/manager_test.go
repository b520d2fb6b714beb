package logmanager

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rzbill/sharedlog/internal/physlog"
	"github.com/rzbill/sharedlog/pkg/id"
)

var cid = id.MustParse("{3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}")

func newTestManager() *Manager {
	return New(Options{Container: physlog.Options{ExtentSize: 4096, MaxExtents: 16}})
}

func TestKindExclusive(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	h1, err := m.Open(ctx, KindInProc)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h2, err := m.Open(ctx, KindInProc)
	if err != nil {
		t.Fatalf("same kind should share: %v", err)
	}
	if _, err := m.Open(ctx, KindDriver); !errors.Is(err, ErrAlreadyInUse) {
		t.Fatalf("expected ErrAlreadyInUse, got %v", err)
	}
	_ = h1.Close(ctx)
	_ = h2.Close(ctx)
	h3, err := m.Open(ctx, KindDriver)
	if err != nil {
		t.Fatalf("kind switch after release: %v", err)
	}
	_ = h3.Close(ctx)
	if err := h3.Close(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// The same path opened twice through one manager.
func TestOpenSamePathTwice(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	h, _ := m.Open(ctx, KindDefault)
	dir := filepath.Join(t.TempDir(), "c1")

	c, err := h.OpenPhysicalLog(ctx, dir, cid, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := h.OpenPhysicalLog(ctx, dir, cid, true); !errors.Is(err, ErrAlreadyInUse) {
		t.Fatalf("expected ErrAlreadyInUse, got %v", err)
	}
	// a different spelling of the same path is the same container
	if _, err := h.OpenPhysicalLog(ctx, dir+"/.", cid, false); !errors.Is(err, ErrAlreadyInUse) {
		t.Fatalf("expected ErrAlreadyInUse for equivalent path, got %v", err)
	}
	if err := h.Close(ctx); !errors.Is(err, ErrContainersOpen) {
		t.Fatalf("expected ErrContainersOpen, got %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close container: %v", err)
	}
	c, err = h.OpenPhysicalLog(ctx, dir, cid, false)
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	_ = c.Close(ctx)
	if err := h.Close(ctx); err != nil {
		t.Fatalf("close handle: %v", err)
	}
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestManager().Open(ctx, KindDefault)
	defer h.Close(ctx)
	_, err := h.OpenPhysicalLog(ctx, filepath.Join(t.TempDir(), "none"), cid, false)
	if !errors.Is(err, physlog.ErrNotFound) {
		t.Fatalf("expected physlog.ErrNotFound, got %v", err)
	}
	if len(h.Containers()) != 0 {
		t.Fatalf("failed open left a tracked container")
	}
}

func TestCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestManager().Open(ctx, KindDefault)
	defer h.Close(ctx)
	dir := filepath.Join(t.TempDir(), "c1")

	c, err := h.CreatePhysicalLog(ctx, dir, cid, CreateOptions{ExtentSize: 1024, MaxExtents: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u := c.Usage(); u.ExtentSize != 1024 || u.MaxExtents != 4 {
		t.Fatalf("geometry not applied: %+v", u)
	}
	if err := h.DeletePhysicalLog(ctx, dir, cid); !errors.Is(err, ErrAlreadyInUse) {
		t.Fatalf("expected ErrAlreadyInUse while open, got %v", err)
	}
	_ = c.Close(ctx)
	if _, err := h.CreatePhysicalLog(ctx, dir, cid, CreateOptions{}); !errors.Is(err, physlog.ErrExists) {
		t.Fatalf("expected physlog.ErrExists, got %v", err)
	}
	if err := h.DeletePhysicalLog(ctx, dir, cid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.OpenPhysicalLog(ctx, dir, cid, false); !errors.Is(err, physlog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindDefault, KindInProc, KindDriver} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Fatalf("parse %s: %v %v", k, got, err)
		}
	}
	if _, err := ParseKind("kernel"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
