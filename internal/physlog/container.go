package physlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
	"github.com/rzbill/sharedlog/pkg/id"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

const (
	metaDirName = "meta"
	// maxLogical bounds firstLogical+len(extents): logical indices are u32.
	maxLogical = uint64(1) << 32
)

// streamEntry is the catalog slot of one stream. rec is guarded by
// Container.mu; wmu serializes everything that rewrites the stream record.
type streamEntry struct {
	wmu      sync.Mutex
	rec      streamRecord
	open     *Stream
	deleting bool
}

// Container multiplexes logical streams over a fixed pool of extents in one
// data file, with stream metadata kept in a Pebble directory next to it.
type Container struct {
	path        string
	id          id.ID
	opts        Options
	log         logpkg.Logger
	metrics     Metrics
	store       ExtentStore
	db          *pebblestore.DB
	extentSize  uint32
	payload     uint64
	maxExtents  uint32
	createdAtMs int64

	// metaMu serializes structural commits: extent grants and returns,
	// stream create/delete, alias changes. Each bumps gen in the same batch.
	metaMu sync.Mutex
	alloc  *allocator
	gen    atomic.Uint64

	mu      sync.Mutex
	streams map[id.ID]*streamEntry
	aliases map[string]id.ID
	closed  bool
	broken  error

	dirty    atomic.Bool
	syncMeta func() error
	stopSync chan struct{}
	syncWG   sync.WaitGroup
}

// Open opens the container stored at path. Without CreateIfMissing or
// CreateOnly a missing container yields ErrNotFound. The stored id must
// equal containerID unless containerID is id.Nil.
func Open(ctx context.Context, path string, containerID id.ID, opts Options) (*Container, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, statErr := os.Stat(filepath.Join(path, dataFileName))
	exists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, ioErr("stat container", statErr)
	}
	switch {
	case exists && opts.CreateOnly:
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	case !exists && !opts.CreateIfMissing && !opts.CreateOnly:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case !exists && containerID.IsNil():
		return nil, fmt.Errorf("%w: a new container needs an id", ErrInvalidOptions)
	}

	c := &Container{
		path:    path,
		id:      containerID,
		opts:    opts,
		metrics: opts.Metrics,
		streams: make(map[id.ID]*streamEntry),
		aliases: make(map[string]id.ID),
	}
	if exists {
		err = c.openExisting(ctx)
	} else {
		err = c.create(ctx)
	}
	if err != nil {
		c.release()
		return nil, err
	}
	c.log.Info("container opened",
		logpkg.Str("path", path),
		logpkg.Uint64("generation", c.gen.Load()),
		logpkg.Int("streams", len(c.streams)),
		logpkg.Int("free_extents", c.alloc.freeCount()),
	)
	c.reportFree()
	c.startSyncer()
	return c, nil
}

// Remove deletes the container at path after verifying its id. The
// container must not be open anywhere.
func Remove(ctx context.Context, path string, containerID id.ID, opts Options) error {
	opts.CreateIfMissing, opts.CreateOnly = false, false
	c, err := Open(ctx, path, containerID, opts)
	if err != nil {
		return err
	}
	if err := c.Close(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return ioErr("remove container", err)
	}
	return nil
}

func (c *Container) create(ctx context.Context) error {
	c.extentSize = c.opts.ExtentSize
	c.maxExtents = c.opts.MaxExtents
	c.payload = uint64(c.extentSize - extentHeaderSize)
	c.createdAtMs = time.Now().UnixMilli()
	c.log = c.opts.Logger.With(logpkg.Component("physlog"), logpkg.Str("container", c.id.String()))

	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return ioErr("create container directory", err)
	}
	// a meta directory without a data file is left over from a failed create
	if err := os.RemoveAll(filepath.Join(c.path, metaDirName)); err != nil {
		return ioErr("clear metadata directory", err)
	}
	size := int64(superblockSize) + int64(c.maxExtents)*int64(c.extentSize)
	store, err := c.opts.openStore(filepath.Join(c.path, dataFileName), true, size)
	if err != nil {
		return storeErr(err)
	}
	c.store = store
	sb := superblock{containerID: c.id, extentSize: c.extentSize, maxExtents: c.maxExtents, createdAtMs: c.createdAtMs}
	if _, err := store.WriteAt(sb.encode(), 0); err != nil {
		return ioErr("write superblock", err)
	}
	if err := c.syncData(); err != nil {
		return err
	}
	if err := c.openDB(); err != nil {
		return err
	}
	c.alloc = newAllocator(c.maxExtents)
	if err := c.commitMutations(ctx, setKV(keyHeader, c.headerRecord(0).marshal())); err != nil {
		return err
	}
	return ioErr("sync metadata", c.db.Sync())
}

func (c *Container) openExisting(ctx context.Context) error {
	store, err := c.opts.openStore(filepath.Join(c.path, dataFileName), false, 0)
	if err != nil {
		return storeErr(err)
	}
	c.store = store
	buf := make([]byte, superblockSize)
	if _, err := store.ReadAt(buf, 0); err != nil {
		return ioErr("read superblock", err)
	}
	sb, err := decodeSuperblock(buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
	}
	if !c.id.IsNil() && sb.containerID != c.id {
		return fmt.Errorf("%w: found %s, want %s", ErrIDMismatch, sb.containerID.Braced(), c.id.Braced())
	}
	c.id = sb.containerID
	c.extentSize = sb.extentSize
	c.maxExtents = sb.maxExtents
	c.payload = uint64(sb.extentSize - extentHeaderSize)
	c.createdAtMs = sb.createdAtMs
	c.log = c.opts.Logger.With(logpkg.Component("physlog"), logpkg.Str("container", c.id.String()))
	if err := c.openDB(); err != nil {
		return err
	}
	return c.recover(ctx)
}

// openDB opens the metadata store. Only always commits sync the WAL;
// otherwise flush syncs it after the extent file.
func (c *Container) openDB() error {
	fsync := pebblestore.FsyncModeNever
	if c.opts.Durability == pebblestore.FsyncModeAlways {
		fsync = pebblestore.FsyncModeAlways
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: filepath.Join(c.path, metaDirName),
		Fsync:   fsync,
		Metrics: c.opts.StoreMetrics,
		Logger:  c.log,
	})
	if err != nil {
		return ioErr("open metadata", err)
	}
	c.db = db
	c.syncMeta = db.Sync
	return nil
}

func storeErr(err error) error {
	if errors.Is(err, ErrLocked) {
		return err
	}
	return ioErr("open extent file", err)
}

// release closes whatever a failed Open managed to acquire.
func (c *Container) release() {
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

func (c *Container) startSyncer() {
	if c.opts.Durability != pebblestore.FsyncModeInterval {
		return
	}
	c.stopSync = make(chan struct{})
	c.syncWG.Add(1)
	go func() {
		defer c.syncWG.Done()
		t := time.NewTicker(c.opts.SyncInterval)
		defer t.Stop()
		for {
			select {
			case <-c.stopSync:
				return
			case <-t.C:
				if !c.dirty.CompareAndSwap(true, false) {
					continue
				}
				if err := c.flush(); err != nil {
					c.dirty.Store(true)
					c.log.Warn("background sync failed", logpkg.Err(err))
				}
			}
		}
	}()
}

// ID returns the container id.
func (c *Container) ID() id.ID { return c.id }

// Path returns the container directory.
func (c *Container) Path() string { return c.path }

// PayloadSize returns the number of stream bytes one extent holds.
func (c *Container) PayloadSize() uint64 { return c.payload }

// Generation returns the structural mutation counter.
func (c *Container) Generation() uint64 { return c.gen.Load() }

// Err reports why the container can no longer serve operations, or nil.
func (c *Container) Err() error { return c.usable() }

// Usage summarizes extent consumption.
type Usage struct {
	ExtentSize  uint32
	MaxExtents  uint32
	FreeExtents uint32
	Streams     int
	Generation  uint64
	// Capacity and Free count stream payload bytes, excluding headers.
	Capacity uint64
	Free     uint64
}

// Usage reports the current extent consumption.
func (c *Container) Usage() Usage {
	free := uint32(c.alloc.freeCount())
	c.mu.Lock()
	n := len(c.streams)
	c.mu.Unlock()
	return Usage{
		ExtentSize:  c.extentSize,
		MaxExtents:  c.maxExtents,
		FreeExtents: free,
		Streams:     n,
		Generation:  c.gen.Load(),
		Capacity:    uint64(c.maxExtents) * c.payload,
		Free:        uint64(free) * c.payload,
	}
}

// StreamInfo is one row of the container directory.
type StreamInfo struct {
	ID        id.ID
	Alias     string
	Head      uint64
	Tail      uint64
	Extents   []uint32
	Open      bool
	CreatedAt time.Time
}

// Streams lists every stream, ordered by id.
func (c *Container) Streams() []StreamInfo {
	c.mu.Lock()
	out := make([]StreamInfo, 0, len(c.streams))
	for _, e := range c.streams {
		out = append(out, StreamInfo{
			ID:        e.rec.id,
			Alias:     e.rec.alias,
			Head:      e.rec.head,
			Tail:      e.rec.tail,
			Extents:   append([]uint32(nil), e.rec.extents...),
			Open:      e.open != nil,
			CreatedAt: time.UnixMilli(e.rec.createdAtMs),
		})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// OpenLogicalStream opens the stream, creating it with head = tail = 0 and
// one extent if absent. alias is bound only when the stream is created.
// Only one handle per stream may be open.
func (c *Container) OpenLogicalStream(ctx context.Context, streamID id.ID, alias string) (*Stream, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if streamID.IsNil() {
		return nil, fmt.Errorf("%w: nil stream id", ErrInvalidOptions)
	}
	c.mu.Lock()
	if e, ok := c.streams[streamID]; ok {
		defer c.mu.Unlock()
		return c.attach(e)
	}
	c.mu.Unlock()
	return c.createStream(ctx, streamID, alias, true)
}

// CreateLogicalStream creates a stream without opening it.
func (c *Container) CreateLogicalStream(ctx context.Context, streamID id.ID, alias string) error {
	if err := c.usable(); err != nil {
		return err
	}
	if streamID.IsNil() {
		return fmt.Errorf("%w: nil stream id", ErrInvalidOptions)
	}
	_, err := c.createStream(ctx, streamID, alias, false)
	return err
}

// attach hands out the single handle of e. Caller holds c.mu.
func (c *Container) attach(e *streamEntry) (*Stream, error) {
	if e.open != nil || e.deleting {
		return nil, fmt.Errorf("%w: %s", ErrStreamInUse, e.rec.id)
	}
	s := &Stream{c: c, e: e, id: e.rec.id}
	e.open = s
	return s, nil
}

func (c *Container) detach(s *Stream) {
	c.mu.Lock()
	if s.e.open == s {
		s.e.open = nil
	}
	c.mu.Unlock()
}

func (c *Container) createStream(ctx context.Context, sid id.ID, alias string, open bool) (*Stream, error) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	c.mu.Lock()
	if e, ok := c.streams[sid]; ok {
		defer c.mu.Unlock()
		if !open {
			return nil, fmt.Errorf("%w: %s", ErrStreamExists, sid)
		}
		return c.attach(e)
	}
	if other, ok := c.aliases[alias]; ok && alias != "" {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q -> %s", ErrAliasInUse, alias, other)
	}
	c.mu.Unlock()

	granted, err := c.grant(1)
	if err != nil {
		return nil, err
	}
	gen := c.gen.Load() + 1
	rec := streamRecord{
		id:          sid,
		alias:       alias,
		extents:     granted,
		createdAtMs: time.Now().UnixMilli(),
	}
	abort := func(err error) (*Stream, error) {
		err = c.rollbackHeaders(nil, 0, 0, granted, err)
		c.releaseExtents(granted)
		return nil, err
	}
	if err := c.writeHeader(granted[0], c.headerFor(&rec, 0, gen)); err != nil {
		return abort(err)
	}
	if err := c.persistData(); err != nil {
		return abort(err)
	}
	muts := []mutation{setKV(keyStream(sid), rec.marshal())}
	if alias != "" {
		muts = append(muts, setKV(keyAlias(alias), marshalAlias(sid)))
	}
	muts = append(muts, setKV(keyHeader, c.headerRecord(gen).marshal()))
	if err := c.commitMutations(ctx, muts...); err != nil {
		return abort(err)
	}
	c.gen.Store(gen)

	c.mu.Lock()
	e := &streamEntry{rec: rec}
	c.streams[sid] = e
	if alias != "" {
		c.aliases[alias] = sid
	}
	var s *Stream
	if open {
		s, _ = c.attach(e)
	}
	c.mu.Unlock()

	c.reportFree()
	c.log.Info("stream created", logpkg.Str("stream", sid.String()), logpkg.Str("alias", alias), logpkg.Uint32("extent", granted[0]))
	return s, nil
}

// DeleteLogicalStream removes a closed stream and returns its extents.
func (c *Container) DeleteLogicalStream(ctx context.Context, streamID id.ID) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	c.mu.Lock()
	e, ok := c.streams[streamID]
	switch {
	case !ok:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	case e.open != nil || e.deleting:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStreamInUse, streamID)
	}
	e.deleting = true
	rec := e.rec.clone()
	c.mu.Unlock()

	undo := func(err error) error {
		err = c.rollbackHeaders(&rec, 0, len(rec.extents), nil, err)
		c.mu.Lock()
		e.deleting = false
		c.mu.Unlock()
		return err
	}
	if err := c.zeroHeaders(rec.extents); err != nil {
		return undo(err)
	}
	if err := c.persistData(); err != nil {
		return undo(err)
	}
	gen := c.gen.Load() + 1
	muts := []mutation{delKV(keyStream(streamID))}
	if rec.alias != "" {
		muts = append(muts, delKV(keyAlias(rec.alias)))
	}
	muts = append(muts, setKV(keyHeader, c.headerRecord(gen).marshal()))
	if err := c.commitMutations(ctx, muts...); err != nil {
		return undo(err)
	}
	c.gen.Store(gen)

	c.mu.Lock()
	delete(c.streams, streamID)
	if rec.alias != "" && c.aliases[rec.alias] == streamID {
		delete(c.aliases, rec.alias)
	}
	c.mu.Unlock()
	c.releaseExtents(rec.extents)
	c.reportFree()
	c.log.Info("stream deleted", logpkg.Str("stream", streamID.String()), logpkg.Int("extents", len(rec.extents)))
	return nil
}

// ResolveAlias returns the stream bound to alias.
func (c *Container) ResolveAlias(alias string) (id.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sid, ok := c.aliases[alias]
	if !ok {
		return id.Nil, fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
	}
	return sid, nil
}

// AssignAlias binds alias to the stream, replacing the stream's previous
// alias. Binding an alias held by another stream fails with ErrAliasInUse.
func (c *Container) AssignAlias(ctx context.Context, alias string, streamID id.ID) error {
	if alias == "" {
		return fmt.Errorf("%w: empty alias", ErrInvalidOptions)
	}
	return c.rebindAlias(ctx, streamID, alias, func(cur streamRecord) error {
		if other, ok := c.aliases[alias]; ok && other != streamID {
			return fmt.Errorf("%w: %q -> %s", ErrAliasInUse, alias, other)
		}
		return nil
	})
}

// RemoveAlias unbinds alias.
func (c *Container) RemoveAlias(ctx context.Context, alias string) error {
	sid, err := c.ResolveAlias(alias)
	if err != nil {
		return err
	}
	return c.rebindAlias(ctx, sid, "", func(cur streamRecord) error {
		if cur.alias != alias {
			return fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
		}
		return nil
	})
}

// rebindAlias rewrites the alias of one stream. check runs under c.mu with
// the stream's current record.
func (c *Container) rebindAlias(ctx context.Context, sid id.ID, alias string, check func(streamRecord) error) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.mu.Lock()
	e, ok := c.streams[sid]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, sid)
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	c.mu.Lock()
	if cur, ok := c.streams[sid]; !ok || cur != e || e.deleting {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStreamNotFound, sid)
	}
	rec := e.rec.clone()
	err := check(rec)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if rec.alias == alias {
		return nil
	}

	old := rec.alias
	rec.alias = alias
	gen := c.gen.Load() + 1
	muts := []mutation{setKV(keyStream(sid), rec.marshal())}
	if old != "" {
		muts = append(muts, delKV(keyAlias(old)))
	}
	if alias != "" {
		muts = append(muts, setKV(keyAlias(alias), marshalAlias(sid)))
	}
	muts = append(muts, setKV(keyHeader, c.headerRecord(gen).marshal()))
	if err := c.commitMutations(ctx, muts...); err != nil {
		return err
	}
	c.gen.Store(gen)

	c.mu.Lock()
	e.rec.alias = alias
	if old != "" {
		delete(c.aliases, old)
	}
	if alias != "" {
		c.aliases[alias] = sid
	}
	c.mu.Unlock()
	return nil
}

// Flush forces extent data and metadata to stable storage.
func (c *Container) Flush(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.flush()
}

// Close closes every open stream, persists metadata and releases the
// container lock.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrContainerClosed
	}
	c.closed = true
	var open []*Stream
	for _, e := range c.streams {
		if e.open != nil {
			open = append(open, e.open)
		}
	}
	c.mu.Unlock()

	var first error
	keep := func(err error) {
		if err != nil && first == nil && !errors.Is(err, ErrClosed) {
			first = err
		}
	}
	for _, s := range open {
		keep(s.Close(ctx))
	}
	if c.stopSync != nil {
		close(c.stopSync)
		c.syncWG.Wait()
	}
	if c.brokenErr() == nil {
		keep(c.flush())
	}
	keep(ioErr("close metadata", c.db.Close()))
	keep(ioErr("close extent file", c.store.Close()))
	c.log.Info("container closed", logpkg.Uint64("generation", c.gen.Load()))
	return first
}

func (c *Container) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContainerClosed
	}
	return c.broken
}

func (c *Container) brokenErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// fail marks the container unusable after an allocator invariant breaks.
func (c *Container) fail(err error) {
	c.mu.Lock()
	if c.broken == nil {
		c.broken = err
	}
	c.mu.Unlock()
	c.log.Error("container marked unusable", logpkg.Err(err))
}

func (c *Container) grant(n int) ([]uint32, error) {
	granted, err := c.alloc.grant(n)
	if errors.Is(err, ErrUnrecoverable) {
		c.fail(err)
	}
	return granted, err
}

func (c *Container) releaseExtents(list []uint32) {
	if len(list) == 0 {
		return
	}
	if err := c.alloc.release(list); err != nil {
		c.fail(err)
	}
}

func (c *Container) reportFree() {
	c.metrics.SetFreeExtents(c.id.String(), c.alloc.freeCount())
}

func (c *Container) headerRecord(gen uint64) containerRecord {
	return containerRecord{
		version:     formatVersion,
		containerID: c.id,
		extentSize:  c.extentSize,
		maxExtents:  c.maxExtents,
		generation:  gen,
		createdAtMs: c.createdAtMs,
	}
}

// snapshot copies the committed record of e.
func (c *Container) snapshot(e *streamEntry) streamRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.rec.clone()
}

// install publishes a committed record. The alias is owned by rebindAlias.
func (c *Container) install(e *streamEntry, rec streamRecord) {
	c.mu.Lock()
	rec.alias = e.rec.alias
	e.rec = rec
	c.mu.Unlock()
}

// mutation is one metadata batch operation; a nil value deletes key, a
// non-nil end deletes the range [key, end).
type mutation struct {
	key, value, end []byte
}

func setKV(k, v []byte) mutation { return mutation{key: k, value: v} }

func delKV(k []byte) mutation { return mutation{key: k} }

func delRange(start, end []byte) mutation { return mutation{key: start, end: end} }

func (c *Container) commitMutations(ctx context.Context, muts ...mutation) error {
	b := c.db.NewBatch()
	defer b.Close()
	for _, m := range muts {
		var err error
		switch {
		case m.end != nil:
			err = b.DeleteRange(m.key, m.end, nil)
		case m.value == nil:
			err = b.Delete(m.key, nil)
		default:
			err = b.Set(m.key, m.value, nil)
		}
		if err != nil {
			return ioErr("build metadata batch", err)
		}
	}
	return c.commit(ctx, b)
}

func (c *Container) commit(ctx context.Context, b *pebble.Batch) error {
	if err := c.db.CommitBatch(ctx, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		return ioErr("commit metadata", err)
	}
	return nil
}
