package logmanager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rzbill/sharedlog/internal/physlog"
	"github.com/rzbill/sharedlog/pkg/id"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

var (
	// ErrAlreadyInUse is returned when the manager is held with a different
	// kind, or when a container path is already open in this process.
	ErrAlreadyInUse = errors.New("logmanager: already in use")
	// ErrContainersOpen is returned by Handle.Close while containers opened
	// through the handle are still open.
	ErrContainersOpen = errors.New("logmanager: containers still open")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("logmanager: handle closed")
)

// Kind selects the logger flavor a handle is opened for. A manager serves
// one kind at a time.
type Kind int

const (
	KindDefault Kind = iota
	KindInProc
	KindDriver
)

func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindInProc:
		return "inproc"
	case KindDriver:
		return "driver"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return KindDefault, nil
	case "inproc":
		return KindInProc, nil
	case "driver":
		return KindDriver, nil
	}
	return KindDefault, fmt.Errorf("logmanager: unknown kind %q; use default|inproc|driver", s)
}

// Options configures a Manager.
type Options struct {
	Logger logpkg.Logger
	// Container supplies the defaults for every container the manager
	// opens: durability, sync interval, rebuild attempts, metrics. Create
	// flags and geometry are set per call.
	Container physlog.Options
}

// Manager owns the process-wide table of open containers. It replaces a
// package-level singleton: callers construct one and share it.
type Manager struct {
	opts Options
	log  logpkg.Logger

	mu   sync.Mutex
	kind Kind
	refs int
	// open maps a cleaned absolute path to its container; nil marks an
	// open in progress.
	open map[string]*Container
}

// New returns a Manager with no open handles.
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	if opts.Container.Logger == nil {
		opts.Container.Logger = opts.Logger
	}
	return &Manager{
		opts: opts,
		log:  opts.Logger.WithComponent("logmanager"),
		open: make(map[string]*Container),
	}
}

// Open returns a handle of the given kind. Handles of one kind share the
// manager; a different kind is refused while any handle is open.
func (m *Manager) Open(ctx context.Context, kind Kind) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs > 0 && m.kind != kind {
		return nil, fmt.Errorf("%w: manager held as %s, requested %s", ErrAlreadyInUse, m.kind, kind)
	}
	m.kind = kind
	m.refs++
	m.log.Debug("handle opened", logpkg.Str("kind", kind.String()), logpkg.Int("refs", m.refs))
	return &Handle{m: m, kind: kind, containers: make(map[string]*Container)}, nil
}

func (m *Manager) releaseHandle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs--
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// reserve claims path for an open or delete in progress.
func (m *Manager) reserve(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.open[key]; busy {
		return fmt.Errorf("%w: %s", ErrAlreadyInUse, key)
	}
	m.open[key] = nil
	return nil
}

func (m *Manager) unreserve(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, key)
}

func (m *Manager) publish(key string, c *Container) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[key] = c
}

// Handle is a reference to the manager through which containers are
// opened, created and deleted.
type Handle struct {
	m    *Manager
	kind Kind

	mu         sync.Mutex
	closed     bool
	containers map[string]*Container
}

// Kind returns the kind the handle was opened with.
func (h *Handle) Kind() Kind { return h.kind }

// CreateOptions shapes a new container. Zero values take the physlog
// defaults.
type CreateOptions struct {
	ExtentSize uint32
	MaxExtents uint32
}

// OpenPhysicalLog opens the container at path. With createIfMissing a
// missing container is created with the default geometry.
func (h *Handle) OpenPhysicalLog(ctx context.Context, path string, containerID id.ID, createIfMissing bool) (*Container, error) {
	opts := h.m.opts.Container
	opts.CreateIfMissing = createIfMissing
	opts.CreateOnly = false
	return h.open(ctx, path, containerID, opts)
}

// CreatePhysicalLog creates and opens a container at path. It fails with
// physlog.ErrExists if one is already there.
func (h *Handle) CreatePhysicalLog(ctx context.Context, path string, containerID id.ID, co CreateOptions) (*Container, error) {
	opts := h.m.opts.Container
	opts.CreateIfMissing = false
	opts.CreateOnly = true
	opts.ExtentSize = co.ExtentSize
	opts.MaxExtents = co.MaxExtents
	return h.open(ctx, path, containerID, opts)
}

func (h *Handle) open(ctx context.Context, path string, containerID id.ID, opts physlog.Options) (*Container, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	key, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}
	if err := h.m.reserve(key); err != nil {
		return nil, err
	}
	pc, err := physlog.Open(ctx, key, containerID, opts)
	if err != nil {
		h.m.unreserve(key)
		return nil, err
	}
	c := &Container{Container: pc, h: h, key: key}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = pc.Close(ctx)
		h.m.unreserve(key)
		return nil, ErrClosed
	}
	h.containers[key] = c
	h.mu.Unlock()
	h.m.publish(key, c)
	h.m.log.Info("container attached",
		logpkg.Str("path", key),
		logpkg.Str("container", pc.ID().String()),
		logpkg.Str("kind", h.kind.String()),
	)
	return c, nil
}

// DeletePhysicalLog removes the container at path after verifying its id.
// A container open in this process is refused with ErrAlreadyInUse.
func (h *Handle) DeletePhysicalLog(ctx context.Context, path string, containerID id.ID) error {
	if err := h.usable(); err != nil {
		return err
	}
	key, err := canonicalPath(path)
	if err != nil {
		return err
	}
	if err := h.m.reserve(key); err != nil {
		return err
	}
	defer h.m.unreserve(key)
	if err := physlog.Remove(ctx, key, containerID, h.m.opts.Container); err != nil {
		return err
	}
	h.m.log.Info("container deleted", logpkg.Str("path", key), logpkg.Str("container", containerID.String()))
	return nil
}

// Containers lists the containers open through h, ordered by path.
func (h *Handle) Containers() []*Container {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Container, 0, len(h.containers))
	for _, c := range h.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Close releases the handle. Containers opened through it must be closed
// first.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if n := len(h.containers); n > 0 {
		return fmt.Errorf("%w: %d", ErrContainersOpen, n)
	}
	h.closed = true
	h.m.releaseHandle()
	return nil
}

func (h *Handle) usable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

// Container is a physlog.Container tracked by the manager until Close.
type Container struct {
	*physlog.Container
	h   *Handle
	key string
}

// Close closes the container and removes it from the manager's table.
func (c *Container) Close(ctx context.Context) error {
	err := c.Container.Close(ctx)
	if errors.Is(err, physlog.ErrContainerClosed) {
		return err
	}
	c.h.mu.Lock()
	delete(c.h.containers, c.key)
	c.h.mu.Unlock()
	c.h.m.unreserve(c.key)
	return err
}
