package runtime

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	"github.com/rzbill/sharedlog/internal/logmanager"
	"github.com/rzbill/sharedlog/internal/metrics"
	"github.com/rzbill/sharedlog/internal/physlog"
	"github.com/rzbill/sharedlog/pkg/id"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Registry receives the container metrics. A private registry is
	// created when nil.
	Registry *prometheus.Registry
}

// Runtime hosts the configured containers through one manager handle for a
// single daemon process.
type Runtime struct {
	config   cfgpkg.Config
	log      logpkg.Logger
	registry *prometheus.Registry
	manager  *logmanager.Manager
	handle   *logmanager.Handle
}

// ManagerOptions converts the storage section of cfg into manager options.
func ManagerOptions(cfg cfgpkg.Config, logger logpkg.Logger, m *metrics.Metrics) (logmanager.Options, error) {
	mode, err := cfg.Storage.FsyncMode()
	if err != nil {
		return logmanager.Options{}, err
	}
	co := physlog.Options{
		ExtentSize:         cfg.Storage.ExtentSize,
		MaxExtents:         cfg.Storage.MaxExtents,
		Durability:         mode,
		SyncInterval:       cfg.Storage.SyncInterval(),
		MaxRebuildAttempts: cfg.Storage.MaxRebuildAttempts,
	}
	if m != nil {
		co.Metrics = m
		co.StoreMetrics = m.Store()
	}
	return logmanager.Options{Logger: logger, Container: co}, nil
}

// Open builds the manager, takes a handle of the configured kind and opens
// every configured container. A failure closes whatever was opened.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	kind, err := logmanager.ParseKind(cfg.Serve.Kind)
	if err != nil {
		return nil, err
	}
	mopts, err := ManagerOptions(cfg, opts.Logger, metrics.New(opts.Registry))
	if err != nil {
		return nil, err
	}
	mgr := logmanager.New(mopts)
	h, err := mgr.Open(ctx, kind)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		config:   cfg,
		log:      opts.Logger.WithComponent("runtime"),
		registry: opts.Registry,
		manager:  mgr,
		handle:   h,
	}
	for _, cc := range cfg.Containers {
		cid, err := id.Parse(cc.ID)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, errors.Wrapf(err, "container %s", cc.Path)
		}
		path := cfg.ContainerPath(cc.Path)
		c, err := h.OpenPhysicalLog(ctx, path, cid, cc.Create)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, errors.Wrapf(err, "open container %s", path)
		}
		rt.log.Info("hosting container", logpkg.Str("path", c.Path()), logpkg.Str("container", c.ID().String()))
	}
	return rt, nil
}

// Close closes every hosted container, then releases the manager handle.
func (r *Runtime) Close(ctx context.Context) error {
	var first error
	for _, c := range r.handle.Containers() {
		if err := c.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	if err := r.handle.Close(ctx); err != nil && first == nil {
		first = err
	}
	return first
}

// CheckHealth reports the first hosted container that cannot serve.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, c := range r.handle.Containers() {
		if err := c.Err(); err != nil {
			return fmt.Errorf("container %s: %w", c.ID(), err)
		}
	}
	return nil
}

// Containers lists the hosted containers ordered by path.
func (r *Runtime) Containers() []*logmanager.Container { return r.handle.Containers() }

// Handle exposes the manager handle the runtime holds.
func (r *Runtime) Handle() *logmanager.Handle { return r.handle }

// Gatherer exposes the metrics registry for scraping.
func (r *Runtime) Gatherer() prometheus.Gatherer { return r.registry }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.log }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
