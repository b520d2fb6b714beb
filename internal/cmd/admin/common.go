package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	"github.com/rzbill/sharedlog/internal/logmanager"
	"github.com/rzbill/sharedlog/internal/physlog"
	"github.com/rzbill/sharedlog/internal/runtime"
	"github.com/rzbill/sharedlog/pkg/id"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// DefaultContainerID is the id the repair tooling assumes when -g is omitted.
const DefaultContainerID = "{3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}"

func addContainerFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("container", "l", "", "Container path (required)")
	cmd.Flags().StringP("container-id", "g", DefaultContainerID, "Container id")
}

// loadConfig reads --config when given, then overlays SHAREDLOG_* variables.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, usagef("%v", err)
	}
	return cfg, nil
}

// commandLogger logs to stderr at the configured level, warn by default so
// tool output stays readable.
func commandLogger(cfg cfgpkg.Config) logpkg.Logger {
	lc := cfg.Log
	if lc.Level == "" || lc.Level == "info" {
		lc.Level = "warn"
	}
	logger, err := logpkg.ApplyConfig(&lc)
	if err != nil {
		return logpkg.NewLogger(logpkg.WithLevel(logpkg.WarnLevel))
	}
	return logger
}

// containerTarget is the container a command operates on.
type containerTarget struct {
	path string
	id   id.ID
}

func parseTarget(cmd *cobra.Command) (containerTarget, error) {
	path, _ := cmd.Flags().GetString("container")
	raw, _ := cmd.Flags().GetString("container-id")
	if path == "" {
		return containerTarget{}, usagef("missing required -l/--container")
	}
	cid, err := id.Parse(raw)
	if err != nil {
		return containerTarget{}, usagef("invalid container id %q: %v", raw, err)
	}
	return containerTarget{path: path, id: cid}, nil
}

// session is one manager handle and the container opened through it.
type session struct {
	handle    *logmanager.Handle
	container *logmanager.Container
	cfg       cfgpkg.Config
}

// openSession opens the manager handle and the target container. A nil co
// opens an existing container; otherwise the container is created with co.
func openSession(ctx context.Context, cmd *cobra.Command, co *logmanager.CreateOptions) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	t, err := parseTarget(cmd)
	if err != nil {
		return nil, err
	}
	mopts, err := runtime.ManagerOptions(cfg, commandLogger(cfg), nil)
	if err != nil {
		return nil, usagef("%v", err)
	}
	h, err := logmanager.New(mopts).Open(ctx, logmanager.KindDefault)
	if err != nil {
		return nil, err
	}
	var c *logmanager.Container
	if co != nil {
		c, err = h.CreatePhysicalLog(ctx, t.path, t.id, *co)
	} else {
		c, err = h.OpenPhysicalLog(ctx, t.path, t.id, false)
	}
	if err != nil {
		_ = h.Close(ctx)
		return nil, err
	}
	return &session{handle: h, container: c, cfg: cfg}, nil
}

// Close closes the container, then the manager handle.
func (s *session) Close(ctx context.Context) error {
	return errors.Join(s.container.Close(ctx), s.handle.Close(ctx))
}

// resolveStream accepts a stream id or, failing that, an alias.
func resolveStream(c *logmanager.Container, ref string) (id.ID, error) {
	if ref == "" {
		return id.Nil, usagef("missing required -s/--stream")
	}
	sid, err := id.Parse(ref)
	if err == nil {
		return sid, nil
	}
	sid, aerr := c.ResolveAlias(ref)
	if errors.Is(aerr, physlog.ErrAliasNotFound) {
		return id.Nil, usagef("%q is neither a stream id nor a known alias", ref)
	}
	return sid, aerr
}

// withSession runs fn against the target container and closes the session
// afterwards. An error from fn takes precedence over a close error.
func withSession(cmd *cobra.Command, co *logmanager.CreateOptions, fn func(*session) error) error {
	ctx := cmd.Context()
	sess, err := openSession(ctx, cmd, co)
	if err != nil {
		return err
	}
	ferr := fn(sess)
	cerr := sess.Close(ctx)
	if ferr != nil {
		return ferr
	}
	return cerr
}

// lookupStream returns the directory row of an existing stream.
func lookupStream(c *logmanager.Container, sid id.ID) (physlog.StreamInfo, error) {
	for _, si := range c.Streams() {
		if si.ID == sid {
			return si, nil
		}
	}
	return physlog.StreamInfo{}, fmt.Errorf("%w: %s", physlog.ErrStreamNotFound, sid.Braced())
}
