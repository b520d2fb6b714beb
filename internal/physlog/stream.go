package physlog

import (
	"context"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
	"github.com/rzbill/sharedlog/internal/varint"
	"github.com/rzbill/sharedlog/pkg/id"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// Stream is the single open handle of a logical stream. Offsets are
// absolute byte positions since stream creation; the readable range is
// [Head, Tail).
//
// Appends, reads and head truncations may run concurrently; appends to one
// stream are linearized. TruncateTail and Close wait for in-flight
// operations and block new ones.
type Stream struct {
	c  *Container
	e  *streamEntry
	id id.ID

	opMu sync.RWMutex

	mu          sync.Mutex
	closed      bool
	stale       bool
	staleHead   uint64
	staleTail   uint64
	activeReads int
	quarantine  []uint32
}

// ID returns the stream id.
func (s *Stream) ID() id.ID { return s.id }

// Alias returns the stream's alias, or "".
func (s *Stream) Alias() string {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.e.rec.alias
}

func (s *Stream) bounds() (head, tail uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale {
		return s.staleHead, s.staleTail
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.e.rec.head, s.e.rec.tail
}

// Head returns the lowest readable offset.
func (s *Stream) Head() uint64 {
	h, _ := s.bounds()
	return h
}

// Tail returns the offset one past the last appended byte.
func (s *Stream) Tail() uint64 {
	_, t := s.bounds()
	return t
}

// Length is the absolute tail. After TruncateTail the handle keeps
// reporting the length it had before the truncation.
func (s *Stream) Length() uint64 { return s.Tail() }

// ReadableLength returns Tail - Head.
func (s *Stream) ReadableLength() uint64 {
	h, t := s.bounds()
	return t - h
}

// enter rejects data operations on closed or stale handles.
func (s *Stream) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked()
}

func (s *Stream) checkLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.stale {
		return ErrReopenRequired
	}
	return s.c.brokenErr()
}

// Append writes p at the tail and returns the new tail. On return the bytes
// are as durable as the container's durability mode promises. A failed or
// cancelled append leaves the stream unchanged.
func (s *Stream) Append(ctx context.Context, p []byte) (uint64, error) {
	s.opMu.RLock()
	defer s.opMu.RUnlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c := s.c
	s.e.wmu.Lock()
	defer s.e.wmu.Unlock()
	rec := c.snapshot(s.e)
	if len(p) == 0 {
		return rec.tail, nil
	}
	old := rec.clone()

	end := rec.tail + uint64(len(p))
	nextLogical := uint64(rec.firstLogical) + uint64(len(rec.extents))
	gen := c.gen.Load()
	var granted []uint32
	if capEnd := nextLogical * c.payload; end > capEnd {
		need := (end - capEnd + c.payload - 1) / c.payload
		if nextLogical+need > maxLogical {
			return 0, fmt.Errorf("%w: stream %s exhausted its logical extent range", ErrNoSpace, s.id)
		}
		c.metaMu.Lock()
		defer c.metaMu.Unlock()
		g, err := c.grant(int(need))
		if err != nil {
			return 0, err
		}
		granted = g
		gen = c.gen.Load() + 1
		rec.extents = append(rec.extents, granted...)
	}
	oldTail := rec.tail
	first := int(oldTail/c.payload) - int(rec.firstLogical)
	last := int((end-1)/c.payload) - int(rec.firstLogical)
	rec.tail = end
	if err := c.writePayload(&rec, oldTail, p); err != nil {
		c.releaseExtents(granted)
		return 0, err
	}
	abort := func(err error) (uint64, error) {
		err = c.rollbackHeaders(&old, first, last+1, granted, err)
		c.releaseExtents(granted)
		return 0, err
	}
	for k := first; k <= last; k++ {
		if err := c.writeHeader(rec.extents[k], c.headerFor(&rec, k, gen)); err != nil {
			return abort(err)
		}
	}
	if err := c.persistData(); err != nil {
		return abort(err)
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	muts := []mutation{setKV(keyStream(s.id), rec.marshal())}
	if granted != nil {
		muts = append(muts, setKV(keyHeader, c.headerRecord(gen).marshal()))
	}
	if err := c.commitMutations(ctx, muts...); err != nil {
		return abort(err)
	}
	if granted != nil {
		c.gen.Store(gen)
		c.reportFree()
	}
	c.install(s.e, rec)
	c.metrics.ObserveAppend(len(p))
	return end, nil
}

// AppendRecord appends payload framed with a varint length prefix.
func (s *Stream) AppendRecord(ctx context.Context, payload []byte) (uint64, error) {
	return s.Append(ctx, varint.AppendRecord(nil, payload))
}

// Read returns up to maxLen bytes starting at offset. Reading at the tail
// returns no bytes and no error.
func (s *Stream) Read(ctx context.Context, offset uint64, maxLen int) ([]byte, error) {
	if maxLen < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidRange, maxLen)
	}
	var out []byte
	err := s.read(ctx, offset, func(avail uint64) []byte {
		out = make([]byte, min(uint64(maxLen), avail))
		return out
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// read copies [offset, offset+len(buf)) into the buffer returned by alloc,
// which receives the number of readable bytes at offset.
func (s *Stream) read(ctx context.Context, offset uint64, alloc func(avail uint64) []byte) error {
	s.opMu.RLock()
	defer s.opMu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := s.beginRead()
	if err != nil {
		return err
	}
	defer s.endRead()

	switch {
	case offset < rec.head:
		return fmt.Errorf("%w: offset %d, head %d", ErrBelowHead, offset, rec.head)
	case offset > rec.tail:
		return fmt.Errorf("%w: offset %d, tail %d", ErrBeyondTail, offset, rec.tail)
	}
	buf := alloc(rec.tail - offset)
	if len(buf) == 0 {
		return nil
	}
	if err := s.c.readPayload(&rec, offset, buf); err != nil {
		return err
	}
	s.c.metrics.ObserveRead(len(buf))
	return nil
}

func (s *Stream) beginRead() (streamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return streamRecord{}, err
	}
	s.activeReads++
	return s.c.snapshot(s.e), nil
}

// endRead returns quarantined extents once no read can reference them.
func (s *Stream) endRead() {
	s.mu.Lock()
	s.activeReads--
	var q []uint32
	if s.activeReads == 0 {
		q, s.quarantine = s.quarantine, nil
	}
	s.mu.Unlock()
	if len(q) > 0 {
		s.c.releaseExtents(q)
		s.c.reportFree()
	}
}

// TruncateHead discards data below newHead. Extents wholly below the new
// head return to the container, except the extent holding the tail.
func (s *Stream) TruncateHead(ctx context.Context, newHead uint64) error {
	s.opMu.RLock()
	defer s.opMu.RUnlock()
	if err := s.enter(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c := s.c
	s.e.wmu.Lock()
	defer s.e.wmu.Unlock()
	rec := c.snapshot(s.e)
	if newHead <= rec.head {
		return nil
	}
	if newHead > rec.tail {
		return fmt.Errorf("%w: head %d beyond tail %d", ErrInvalidRange, newHead, rec.tail)
	}

	old := rec.clone()
	drop := int(newHead/c.payload) - int(rec.firstLogical)
	drop = max(0, min(drop, len(rec.extents)-1))
	freed := append([]uint32(nil), rec.extents[:drop]...)
	rec.extents = append([]uint32(nil), rec.extents[drop:]...)
	rec.firstLogical += uint32(drop)
	rec.head = newHead

	gen := c.gen.Load()
	if drop > 0 {
		c.metaMu.Lock()
		defer c.metaMu.Unlock()
		gen = c.gen.Load() + 1
	}
	abort := func(err error) error {
		return c.rollbackHeaders(&old, 0, drop+1, nil, err)
	}
	if err := c.writeHeader(rec.extents[0], c.headerFor(&rec, 0, gen)); err != nil {
		return abort(err)
	}
	if err := c.zeroHeaders(freed); err != nil {
		return abort(err)
	}
	if err := c.persistData(); err != nil {
		return abort(err)
	}
	muts := []mutation{setKV(keyStream(s.id), rec.marshal())}
	if drop > 0 {
		muts = append(muts, setKV(keyHeader, c.headerRecord(gen).marshal()))
	}
	if err := c.commitMutations(ctx, muts...); err != nil {
		return abort(err)
	}
	c.install(s.e, rec)
	if drop > 0 {
		c.gen.Store(gen)
		s.mu.Lock()
		if s.activeReads > 0 {
			s.quarantine = append(s.quarantine, freed...)
			freed = nil
		}
		s.mu.Unlock()
		c.releaseExtents(freed)
		c.reportFree()
	}
	c.metrics.ObserveTruncate("head")
	return nil
}

// TruncateTail discards data at and above newTail. It waits for in-flight
// operations on the handle and commits atomically. Afterwards the handle
// reports its previous bounds and rejects data operations with
// ErrReopenRequired; close and reopen the stream to observe the new tail.
func (s *Stream) TruncateTail(ctx context.Context, newTail uint64) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c := s.c
	s.e.wmu.Lock()
	defer s.e.wmu.Unlock()
	rec := c.snapshot(s.e)
	switch {
	case newTail >= rec.tail:
		return fmt.Errorf("%w: tail %d not below current tail %d", ErrInvalidRange, newTail, rec.tail)
	case newTail < rec.head:
		return fmt.Errorf("%w: tail %d, head %d", ErrWouldOrphanHead, newTail, rec.head)
	}
	oldHead, oldTail := rec.head, rec.tail

	old := rec.clone()
	keep := int((newTail+c.payload-1)/c.payload) - int(rec.firstLogical)
	keep = max(keep, 1)
	freed := append([]uint32(nil), rec.extents[keep:]...)
	rec.extents = append([]uint32(nil), rec.extents[:keep]...)
	rec.tail = newTail

	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	gen := c.gen.Load() + 1
	abort := func(err error) error {
		return c.rollbackHeaders(&old, keep-1, len(old.extents), nil, err)
	}
	if err := c.writeHeader(rec.extents[keep-1], c.headerFor(&rec, keep-1, gen)); err != nil {
		return abort(err)
	}
	if err := c.zeroHeaders(freed); err != nil {
		return abort(err)
	}
	if err := c.persistData(); err != nil {
		return abort(err)
	}
	if err := c.commitMutations(ctx,
		setKV(keyStream(s.id), rec.marshal()),
		setKV(keyHeader, c.headerRecord(gen).marshal()),
	); err != nil {
		return abort(err)
	}
	c.gen.Store(gen)
	c.install(s.e, rec)
	c.releaseExtents(freed)
	c.reportFree()

	s.mu.Lock()
	s.stale = true
	s.staleHead, s.staleTail = oldHead, oldTail
	s.mu.Unlock()

	c.metrics.ObserveTruncate("tail")
	c.log.Info("stream tail truncated",
		logpkg.Str("stream", s.id.String()),
		logpkg.Uint64("from", oldTail),
		logpkg.Uint64("to", newTail),
		logpkg.Int("freed_extents", len(freed)),
	)
	return nil
}

// Flush forces appended data and metadata to stable storage.
func (s *Stream) Flush(ctx context.Context) error {
	s.opMu.RLock()
	defer s.opMu.RUnlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.c.flush()
}

// Close flushes and releases the handle. A second Close returns ErrClosed.
func (s *Stream) Close(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	q := s.quarantine
	s.quarantine = nil
	s.mu.Unlock()

	s.c.releaseExtents(q)
	var err error
	if s.c.opts.Durability != pebblestore.FsyncModeAlways && s.c.brokenErr() == nil {
		err = s.c.flush()
	}
	s.c.detach(s)
	return err
}
