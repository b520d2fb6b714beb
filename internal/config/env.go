package config

import (
	"os"
	"strconv"
)

// FromEnv overlays SHAREDLOG_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("SHAREDLOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SHAREDLOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SHAREDLOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SHAREDLOG_FSYNC"); v != "" {
		cfg.Storage.Fsync = v
	}
	if v := os.Getenv("SHAREDLOG_SYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.SyncIntervalMs = n
		}
	}
	if v := os.Getenv("SHAREDLOG_EXTENT_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Storage.ExtentSize = uint32(n)
		}
	}
	if v := os.Getenv("SHAREDLOG_MAX_EXTENTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Storage.MaxExtents = uint32(n)
		}
	}
	if v := os.Getenv("SHAREDLOG_MAX_REBUILD_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxRebuildAttempts = n
		}
	}
	if v := os.Getenv("SHAREDLOG_GRPC_ADDR"); v != "" {
		cfg.Serve.GRPCAddr = v
	}
	if v := os.Getenv("SHAREDLOG_HTTP_ADDR"); v != "" {
		cfg.Serve.HTTPAddr = v
	}
	if v := os.Getenv("SHAREDLOG_KIND"); v != "" {
		cfg.Serve.Kind = v
	}
}
