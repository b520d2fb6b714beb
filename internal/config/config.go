package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir    string            `json:"dataDir" yaml:"dataDir"`
	Log        logpkg.Config     `json:"log" yaml:"log"`
	Storage    StorageConfig     `json:"storage" yaml:"storage"`
	Serve      ServeConfig       `json:"serve" yaml:"serve"`
	Containers []ContainerConfig `json:"containers,omitempty" yaml:"containers,omitempty"`
}

// StorageConfig holds the container defaults.
type StorageConfig struct {
	// Fsync is always, interval or never.
	Fsync              string `json:"fsync" yaml:"fsync"`
	SyncIntervalMs     int    `json:"syncIntervalMs" yaml:"syncIntervalMs"`
	ExtentSize         uint32 `json:"extentSize" yaml:"extentSize"`
	MaxExtents         uint32 `json:"maxExtents" yaml:"maxExtents"`
	MaxRebuildAttempts int    `json:"maxRebuildAttempts" yaml:"maxRebuildAttempts"`
}

// ServeConfig configures daemon mode.
type ServeConfig struct {
	GRPCAddr string `json:"grpcAddr" yaml:"grpcAddr"`
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
	// Kind is the logger kind the daemon holds the manager with.
	Kind string `json:"kind" yaml:"kind"`
}

// ContainerConfig names a container hosted by the daemon. A relative Path
// is resolved against DataDir.
type ContainerConfig struct {
	Path   string `json:"path" yaml:"path"`
	ID     string `json:"id" yaml:"id"`
	Create bool   `json:"create" yaml:"create"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Log:     logpkg.Config{Level: "info", Format: "text"},
		Storage: StorageConfig{
			Fsync:              "always",
			SyncIntervalMs:     5,
			ExtentSize:         1 << 20,
			MaxExtents:         1024,
			MaxRebuildAttempts: 3,
		},
		Serve: ServeConfig{
			GRPCAddr: "127.0.0.1:7070",
			HTTPAddr: "127.0.0.1:7080",
			Kind:     "default",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// FsyncMode parses Storage.Fsync.
func (s StorageConfig) FsyncMode() (pebblestore.FsyncMode, error) {
	return pebblestore.ParseFsyncMode(s.Fsync)
}

// SyncInterval returns Storage.SyncIntervalMs as a duration.
func (s StorageConfig) SyncInterval() time.Duration {
	return time.Duration(s.SyncIntervalMs) * time.Millisecond
}

// ContainerPath resolves a container path against DataDir.
func (c Config) ContainerPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// Validate reports settings that cannot be used as given.
func (c Config) Validate() error {
	if _, err := c.Storage.FsyncMode(); err != nil {
		return err
	}
	if _, err := logpkg.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Storage.SyncIntervalMs < 0 {
		return fmt.Errorf("config: negative syncIntervalMs %d", c.Storage.SyncIntervalMs)
	}
	for i, cc := range c.Containers {
		if cc.Path == "" || cc.ID == "" {
			return fmt.Errorf("config: containers[%d] needs path and id", i)
		}
	}
	return nil
}
