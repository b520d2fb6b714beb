package physlog

import (
	"fmt"
	"time"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

const (
	DefaultExtentSize         = 1 << 20
	DefaultMaxExtents         = 1024
	DefaultMaxRebuildAttempts = 3
	DefaultSyncInterval       = 5 * time.Millisecond

	// MinExtentSize leaves room for the extent header plus a payload.
	MinExtentSize = 2 * extentHeaderSize
	MaxExtentSize = 1 << 30
)

// Options configures Open.
type Options struct {
	// CreateIfMissing creates the container when path holds none.
	CreateIfMissing bool
	// CreateOnly creates the container and fails with ErrExists if one is
	// already present.
	CreateOnly bool

	// ExtentSize and MaxExtents shape a new container. Existing containers
	// keep the geometry recorded in their superblock.
	ExtentSize uint32
	MaxExtents uint32

	// Durability selects when data and metadata reach stable storage:
	// always (before Append returns), interval (every SyncInterval), never
	// (on Flush or Close).
	Durability   pebblestore.FsyncMode
	SyncInterval time.Duration

	// MaxRebuildAttempts bounds metadata reconstruction on open. Zero means
	// DefaultMaxRebuildAttempts; a negative value disables rebuilding.
	MaxRebuildAttempts int

	Logger       logpkg.Logger
	Metrics      Metrics
	StoreMetrics pebblestore.MetricsHook

	// openStore replaces the extent file in tests.
	openStore func(path string, create bool, size int64) (ExtentStore, error)
}

func (o Options) withDefaults() (Options, error) {
	if o.ExtentSize == 0 {
		o.ExtentSize = DefaultExtentSize
	}
	if o.MaxExtents == 0 {
		o.MaxExtents = DefaultMaxExtents
	}
	if o.ExtentSize < MinExtentSize || o.ExtentSize > MaxExtentSize {
		return o, fmt.Errorf("%w: extent size %d outside [%d, %d]", ErrInvalidOptions, o.ExtentSize, MinExtentSize, MaxExtentSize)
	}
	if o.Durability == pebblestore.FsyncModeUnspecified {
		o.Durability = pebblestore.FsyncModeAlways
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	switch {
	case o.MaxRebuildAttempts == 0:
		o.MaxRebuildAttempts = DefaultMaxRebuildAttempts
	case o.MaxRebuildAttempts < 0:
		o.MaxRebuildAttempts = 0
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.openStore == nil {
		o.openStore = func(path string, create bool, size int64) (ExtentStore, error) {
			return openExtentFile(path, create, size)
		}
	}
	return o, nil
}

// Metrics receives container observations. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	ObserveAppend(bytes int)
	ObserveRead(bytes int)
	ObserveTruncate(kind string)
	ObserveSync(elapsed time.Duration)
	ObserveRebuild(outcome string)
	SetFreeExtents(container string, free int)
}

// NoopMetrics discards observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAppend(int)          {}
func (NoopMetrics) ObserveRead(int)            {}
func (NoopMetrics) ObserveTruncate(string)     {}
func (NoopMetrics) ObserveSync(time.Duration)  {}
func (NoopMetrics) ObserveRebuild(string)      {}
func (NoopMetrics) SetFreeExtents(string, int) {}
