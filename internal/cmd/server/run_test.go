package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	"github.com/rzbill/sharedlog/internal/physlog"
	"github.com/rzbill/sharedlog/pkg/id"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

const testID = "{3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}"

func TestProcessLogger(t *testing.T) {
	tests := []struct {
		name     string
		cfg      logpkg.Config
		expected logpkg.Level
	}{
		{name: "valid config", cfg: logpkg.Config{Level: "debug", Format: "json"}, expected: logpkg.DebugLevel},
		{name: "unknown format keeps level", cfg: logpkg.Config{Level: "warn", Format: "xml"}, expected: logpkg.WarnLevel},
		{name: "unknown level", cfg: logpkg.Config{Level: "loud", Format: "text"}, expected: logpkg.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processLogger(tt.cfg).GetLevel(); got != tt.expected {
				t.Errorf("level = %v, expected %v", got, tt.expected)
			}
		})
	}
}

// TestRunIntegration starts the daemon on ephemeral ports and lets the
// context deadline shut it down.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Fsync = "never"
	cfg.Storage.ExtentSize = 4096
	cfg.Storage.MaxExtents = 8
	cfg.Serve.GRPCAddr = "127.0.0.1:0"
	cfg.Serve.HTTPAddr = "127.0.0.1:0"
	cfg.Containers = []cfgpkg.ContainerConfig{{Path: "c1", ID: testID, Create: true}}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	if err := Run(ctx, Options{Config: cfg, Logger: logger}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.DataDir, "c1")); err != nil {
		t.Fatalf("container not created: %v", err)
	}
	// Run released the container lock on the way out.
	c, err := physlog.Open(context.Background(), filepath.Join(cfg.DataDir, "c1"), id.MustParse(testID), physlog.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = c.Close(context.Background())
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Fsync = "sometimes"
	logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	if err := Run(context.Background(), Options{Config: cfg, Logger: logger}); err == nil {
		t.Fatalf("expected config error")
	}
}
