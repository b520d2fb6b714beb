package physlog

import (
	"fmt"
	"time"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
)

func (c *Container) extentOffset(phys uint32) int64 {
	return superblockSize + int64(phys)*int64(c.extentSize)
}

// headerFor derives the header of the k-th extent of rec.
func (c *Container) headerFor(rec *streamRecord, k int, gen uint64) extentHeader {
	logical := rec.firstLogical + uint32(k)
	start := uint64(logical) * c.payload
	var used, skip uint64
	if rec.tail > start {
		used = min(rec.tail-start, c.payload)
	}
	if k == 0 && rec.head > start {
		skip = min(rec.head-start, c.payload)
	}
	return extentHeader{
		containerID: c.id,
		streamID:    rec.id,
		logical:     logical,
		used:        uint32(used),
		headSkip:    uint32(skip),
		generation:  gen,
	}
}

func (c *Container) writeHeader(phys uint32, h extentHeader) error {
	if _, err := c.store.WriteAt(h.encode(), c.extentOffset(phys)); err != nil {
		return ioErr("write extent header", err)
	}
	return nil
}

func (c *Container) zeroHeaders(list []uint32) error {
	for _, phys := range list {
		if _, err := c.store.WriteAt(zeroHeader, c.extentOffset(phys)); err != nil {
			return ioErr("clear extent header", err)
		}
	}
	return nil
}

// rollbackHeaders puts the headers of old's extents [from, to) back and
// clears drop after a failed operation, so a later rebuild sees the stream
// as it was committed. If that fails the container is marked unusable.
func (c *Container) rollbackHeaders(old *streamRecord, from, to int, drop []uint32, cause error) error {
	gen := c.gen.Load()
	err := func() error {
		if old != nil {
			for k := max(from, 0); k < min(to, len(old.extents)); k++ {
				if err := c.writeHeader(old.extents[k], c.headerFor(old, k, gen)); err != nil {
					return err
				}
			}
		}
		if err := c.zeroHeaders(drop); err != nil {
			return err
		}
		return c.persistData()
	}()
	if err != nil {
		c.fail(fmt.Errorf("%w: extent headers diverge from metadata after %v: %v", ErrUnrecoverable, cause, err))
	}
	return cause
}

// span calls fn for every extent piece covering [off, off+n) of rec.
func (c *Container) span(rec *streamRecord, off, n uint64, fn func(fileOff int64, lo, hi uint64) error) error {
	var done uint64
	for done < n {
		pos := off + done
		logical := pos / c.payload
		k := logical - uint64(rec.firstLogical)
		if k >= uint64(len(rec.extents)) {
			return fmt.Errorf("%w: offset %d outside extents of stream %s", ErrUnrecoverable, pos, rec.id)
		}
		within := pos - logical*c.payload
		chunk := min(c.payload-within, n-done)
		fileOff := c.extentOffset(rec.extents[k]) + extentHeaderSize + int64(within)
		if err := fn(fileOff, done, done+chunk); err != nil {
			return err
		}
		done += chunk
	}
	return nil
}

func (c *Container) writePayload(rec *streamRecord, off uint64, p []byte) error {
	return c.span(rec, off, uint64(len(p)), func(fileOff int64, lo, hi uint64) error {
		if _, err := c.store.WriteAt(p[lo:hi], fileOff); err != nil {
			return ioErr("write extent payload", err)
		}
		return nil
	})
}

func (c *Container) readPayload(rec *streamRecord, off uint64, p []byte) error {
	return c.span(rec, off, uint64(len(p)), func(fileOff int64, lo, hi uint64) error {
		if _, err := c.store.ReadAt(p[lo:hi], fileOff); err != nil {
			return ioErr("read extent payload", err)
		}
		return nil
	})
}

// persistData makes extent writes durable according to the durability
// mode. Interval and never leave the work to the syncer or to Flush, which
// sync data before metadata.
func (c *Container) persistData() error {
	if c.opts.Durability == pebblestore.FsyncModeAlways {
		return c.syncData()
	}
	c.dirty.Store(true)
	return nil
}

func (c *Container) syncData() error {
	start := time.Now()
	if err := c.store.Sync(); err != nil {
		return ioErr("sync extent file", err)
	}
	c.metrics.ObserveSync(time.Since(start))
	return nil
}

// flush syncs the data file before the metadata WAL.
func (c *Container) flush() error {
	if err := c.syncData(); err != nil {
		return err
	}
	if err := c.syncMeta(); err != nil {
		return ioErr("sync metadata", err)
	}
	return nil
}
