package admin

import (
	"context"
	"testing"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	"github.com/rzbill/sharedlog/internal/logmanager"
	"github.com/rzbill/sharedlog/internal/runtime"
	"github.com/rzbill/sharedlog/pkg/id"
)

func mustID(t *testing.T, s string) id.ID {
	t.Helper()
	v, err := id.Parse(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

// openTestSession opens path the way the commands do, bypassing flags.
func openTestSession(t *testing.T, path string) *session {
	t.Helper()
	ctx := context.Background()
	cfg := cfgpkg.Default()
	mopts, err := runtime.ManagerOptions(cfg, nil, nil)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	h, err := logmanager.New(mopts).Open(ctx, logmanager.KindDefault)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	c, err := h.OpenPhysicalLog(ctx, path, mustID(t, DefaultContainerID), false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return &session{handle: h, container: c, cfg: cfg}
}
