package runtime

import (
	"context"
	"errors"
	"testing"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	"github.com/rzbill/sharedlog/internal/physlog"
)

const testID = "{3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}"

func testConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.ExtentSize = 4096
	cfg.Storage.MaxExtents = 16
	cfg.Containers = []cfgpkg.ContainerConfig{{Path: "c1", ID: testID, Create: true}}
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	if err := rt.CheckHealth(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	cs := rt.Containers()
	if len(cs) != 1 || cs[0].Usage().MaxExtents != 16 {
		t.Fatalf("unexpected containers %v", cs)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenMissingContainer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Containers[0].Create = false
	_, err := Open(context.Background(), Options{Config: cfg})
	if !errors.Is(err, physlog.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenReleasesOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Containers = append(cfg.Containers, cfgpkg.ContainerConfig{Path: "c2", ID: "not-an-id", Create: true})
	if _, err := Open(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatalf("expected id parse error")
	}
	// c1 must have been closed and unlocked.
	cfg.Containers = cfg.Containers[:1]
	rt, err := Open(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = rt.Close(context.Background())
}

func TestHealthReportsClosedContainer(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close(ctx)
	c := rt.Containers()[0]
	if err := c.Container.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.CheckHealth(ctx); !errors.Is(err, physlog.ErrContainerClosed) {
		t.Fatalf("expected closed container, got %v", err)
	}
}
