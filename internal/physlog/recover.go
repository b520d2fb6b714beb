package physlog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/sharedlog/internal/storage/pebble"
	"github.com/rzbill/sharedlog/pkg/id"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// catalog is the validated in-memory image of the metadata directory.
type catalog struct {
	header  containerRecord
	streams map[id.ID]*streamRecord
	aliases map[string]id.ID
	// aliasIndex holds every decodable a/ entry, consistent or not.
	aliasIndex map[string]id.ID
	alloc      *allocator
}

// recover loads the catalog, rebuilding corrupt metadata from the extent
// headers up to MaxRebuildAttempts times.
func (c *Container) recover(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		cat, ce, err := c.loadCatalog()
		if err != nil {
			return err
		}
		if ce == nil {
			if attempt > 0 {
				c.metrics.ObserveRebuild("repaired")
				c.log.Info("metadata rebuilt", logpkg.Int("attempts", attempt))
			}
			c.installCatalog(cat)
			return nil
		}
		if attempt >= c.opts.MaxRebuildAttempts {
			c.metrics.ObserveRebuild("failed")
			c.log.Error("metadata unrecoverable", logpkg.Int("attempts", attempt), logpkg.Err(ce))
			return fmt.Errorf("%w: %w", ErrUnrecoverable, ce)
		}
		c.log.Warn("metadata corrupt, rebuilding from extent headers",
			logpkg.Int("attempt", attempt+1),
			logpkg.Int("streams", len(ce.streams)),
			logpkg.Bool("header", ce.header),
			logpkg.Err(ce),
		)
		if err := c.rebuild(ctx, cat, ce); err != nil {
			return err
		}
	}
}

func (c *Container) installCatalog(cat *catalog) {
	c.gen.Store(cat.header.generation)
	c.alloc = cat.alloc
	for sid, rec := range cat.streams {
		c.streams[sid] = &streamEntry{rec: *rec}
	}
	for alias, sid := range cat.aliases {
		c.aliases[alias] = sid
	}
}

// loadCatalog reads and validates the metadata directory. Corruption is
// reported through the second result together with the records that did
// validate; the error result is reserved for I/O failures.
func (c *Container) loadCatalog() (*catalog, *corruptionError, error) {
	cat := &catalog{
		streams:    make(map[id.ID]*streamRecord),
		aliases:    make(map[string]id.ID),
		aliasIndex: make(map[string]id.ID),
		alloc:      newAllocator(c.maxExtents),
	}
	ce := &corruptionError{}

	v, err := c.db.Get(keyHeader)
	switch {
	case errors.Is(err, pebblestore.ErrNotFound):
		ce.header, ce.all = true, true
	case err != nil:
		return nil, nil, ioErr("read container header", err)
	default:
		h, err := unmarshalContainerRecord(v)
		if err != nil || h.containerID != c.id || h.extentSize != c.extentSize || h.maxExtents != c.maxExtents {
			ce.header = true
		} else {
			cat.header = h
		}
	}

	err = c.scan(streamSeg, func(k, v []byte) {
		sid, ok := id.FromBytes(k[len(streamSeg):])
		if !ok {
			ce.badKeys = append(ce.badKeys, append([]byte(nil), k...))
			return
		}
		rec, err := unmarshalStreamRecord(v)
		switch {
		case err != nil:
			ce.markStream(sid, fmt.Sprintf("stream %s: %v", sid, err))
		case rec.id != sid:
			ce.markStream(sid, fmt.Sprintf("stream %s: record names %s", sid, rec.id))
		default:
			if why := c.validateRecord(&rec); why != "" {
				ce.markStream(sid, fmt.Sprintf("stream %s: %s", sid, why))
				return
			}
			cat.streams[sid] = &rec
		}
	})
	if err != nil {
		return nil, nil, err
	}

	err = c.scan(aliasSeg, func(k, v []byte) {
		sid, err := unmarshalAlias(v)
		if err != nil {
			ce.aliases = true
			return
		}
		cat.aliasIndex[string(k[len(aliasSeg):])] = sid
	})
	if err != nil {
		return nil, nil, err
	}

	// Ownership and alias conflicts are checked in id order so the same
	// stream is blamed on every attempt.
	ids := make([]id.ID, 0, len(cat.streams))
	for sid := range cat.streams {
		ids = append(ids, sid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	owners := make(map[uint32]id.ID)
	for _, sid := range ids {
		for _, e := range cat.streams[sid].extents {
			if other, dup := owners[e]; dup {
				ce.markStream(sid, fmt.Sprintf("stream %s: extent %d also owned by %s", sid, e, other))
				ce.markStream(other, fmt.Sprintf("stream %s: extent %d also owned by %s", other, e, sid))
				continue
			}
			owners[e] = sid
		}
	}
	for _, sid := range ids {
		rec := cat.streams[sid]
		if rec.alias == "" {
			continue
		}
		if other, dup := cat.aliases[rec.alias]; dup {
			ce.markStream(sid, fmt.Sprintf("stream %s: alias %q also used by %s", sid, rec.alias, other))
			continue
		}
		cat.aliases[rec.alias] = sid
	}
	for sid := range ce.streams {
		if rec, ok := cat.streams[sid]; ok {
			if cat.aliases[rec.alias] == sid {
				delete(cat.aliases, rec.alias)
			}
			delete(cat.streams, sid)
		}
	}

	for alias, sid := range cat.aliasIndex {
		if cat.aliases[alias] == sid {
			continue
		}
		if _, rebuilding := ce.streams[sid]; !rebuilding {
			ce.aliases = true
		}
	}
	for alias, sid := range cat.aliases {
		if cat.aliasIndex[alias] != sid {
			ce.aliases = true
		}
	}

	for _, rec := range cat.streams {
		for _, e := range rec.extents {
			if err := cat.alloc.claim(e); err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
			}
		}
	}
	if ce.any() {
		return cat, ce, nil
	}
	return cat, nil, nil
}

// scan calls fn for every key under prefix.
func (c *Container) scan(prefix []byte, fn func(k, v []byte)) error {
	it, err := c.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return ioErr("scan metadata", err)
	}
	for ok := it.First(); ok; ok = it.Next() {
		fn(it.Key(), it.Value())
	}
	if err := it.Close(); err != nil {
		return ioErr("scan metadata", err)
	}
	return nil
}

// validateRecord checks a decoded stream record against the container
// geometry and returns a description of the first violation.
func (c *Container) validateRecord(rec *streamRecord) string {
	if len(rec.extents) == 0 {
		return "no extents"
	}
	if uint64(rec.firstLogical)+uint64(len(rec.extents)) > maxLogical {
		return "logical extent range overflows"
	}
	for _, e := range rec.extents {
		if e >= c.maxExtents {
			return fmt.Sprintf("extent %d out of range", e)
		}
	}
	start := uint64(rec.firstLogical) * c.payload
	end := start + uint64(len(rec.extents))*c.payload
	if rec.head > rec.tail || rec.head < start || rec.tail > end {
		return fmt.Sprintf("bounds [%d, %d) outside extents [%d, %d)", rec.head, rec.tail, start, end)
	}
	return ""
}

type foundExtent struct {
	phys uint32
	h    extentHeader
}

// rebuild reconstructs the records named by ce from the extent headers and
// rewrites the container header and alias index in one batch. Extents owned
// by records that validated are left alone.
func (c *Container) rebuild(ctx context.Context, cat *catalog, ce *corruptionError) error {
	owned := make(map[uint32]bool)
	for _, rec := range cat.streams {
		for _, e := range rec.extents {
			owned[e] = true
		}
	}

	maxGen := cat.header.generation
	found := make(map[id.ID][]foundExtent)
	buf := make([]byte, extentHeaderSize)
	for phys := uint32(0); phys < c.maxExtents; phys++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.store.ReadAt(buf, c.extentOffset(phys)); err != nil {
			return ioErr("scan extent headers", err)
		}
		h, ok := decodeExtentHeader(buf)
		if !ok || h.containerID != c.id {
			continue
		}
		maxGen = max(maxGen, h.generation)
		if owned[phys] || uint64(h.used) > c.payload || uint64(h.headSkip) > c.payload {
			continue
		}
		found[h.streamID] = append(found[h.streamID], foundExtent{phys: phys, h: h})
	}

	targets := make(map[id.ID]bool)
	for sid := range ce.streams {
		targets[sid] = true
	}
	if ce.all {
		for sid := range found {
			if _, good := cat.streams[sid]; !good {
				targets[sid] = true
			}
		}
	}
	ids := make([]id.ID, 0, len(targets))
	for sid := range targets {
		ids = append(ids, sid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	aliasOf := make(map[id.ID]string)
	for alias, sid := range cat.aliasIndex {
		if prev, ok := aliasOf[sid]; !ok || alias < prev {
			aliasOf[sid] = alias
		}
	}
	final := make(map[id.ID]*streamRecord, len(cat.streams)+len(ids))
	taken := make(map[string]bool)
	for sid, rec := range cat.streams {
		final[sid] = rec
		if rec.alias != "" {
			taken[rec.alias] = true
		}
	}

	var muts []mutation
	for _, k := range ce.badKeys {
		muts = append(muts, delKV(k))
	}
	lost := 0
	for _, sid := range ids {
		rec, ok := c.reconstruct(sid, found[sid])
		if !ok {
			lost++
			muts = append(muts, delKV(keyStream(sid)))
			c.log.Warn("stream has no surviving extents, dropping", logpkg.Str("stream", sid.String()))
			continue
		}
		if a, ok := aliasOf[sid]; ok && !taken[a] {
			rec.alias = a
			taken[a] = true
		}
		final[sid] = rec
		muts = append(muts, setKV(keyStream(sid), rec.marshal()))
	}

	muts = append(muts, delRange(aliasSeg, prefixEnd(aliasSeg)))
	for sid, rec := range final {
		if rec.alias != "" {
			muts = append(muts, setKV(keyAlias(rec.alias), marshalAlias(sid)))
		}
	}
	createdAt := cat.header.createdAtMs
	if ce.header {
		createdAt = c.createdAtMs
	}
	c.createdAtMs = createdAt
	muts = append(muts, setKV(keyHeader, c.headerRecord(maxGen+1).marshal()))

	if err := c.commitMutations(ctx, muts...); err != nil {
		return err
	}
	if err := c.db.Sync(); err != nil {
		return ioErr("sync metadata", err)
	}
	c.log.Info("metadata rewritten from extent headers",
		logpkg.Int("rebuilt", len(ids)-lost),
		logpkg.Int("dropped", lost),
		logpkg.Uint64("generation", maxGen+1),
	)
	return nil
}

// reconstruct derives a stream record from its extent headers. Per logical
// index the highest generation wins; the record covers the contiguous run
// ending at the highest logical index.
func (c *Container) reconstruct(sid id.ID, list []foundExtent) (*streamRecord, bool) {
	if len(list) == 0 {
		return nil, false
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].h.logical != list[j].h.logical {
			return list[i].h.logical < list[j].h.logical
		}
		return list[i].h.generation > list[j].h.generation
	})
	uniq := list[:1]
	for _, f := range list[1:] {
		if f.h.logical != uniq[len(uniq)-1].h.logical {
			uniq = append(uniq, f)
		}
	}
	j := len(uniq) - 1
	for j > 0 && uniq[j-1].h.logical+1 == uniq[j].h.logical {
		j--
	}
	run := uniq[j:]

	first, last := run[0].h, run[len(run)-1].h
	head := uint64(first.logical)*c.payload + uint64(first.headSkip)
	tail := uint64(last.logical)*c.payload + uint64(last.used)
	head = min(head, tail)
	rec := &streamRecord{
		id:           sid,
		head:         head,
		tail:         tail,
		firstLogical: first.logical,
		createdAtMs:  time.Now().UnixMilli(),
	}
	for _, f := range run {
		rec.extents = append(rec.extents, f.phys)
	}
	return rec, true
}
