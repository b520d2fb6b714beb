// Package physlog implements the physical log container: many append-only
// logical streams multiplexed over a fixed pool of extents in one file.
//
// # Overview
//
// A container directory holds two things:
//   - extents.dat: a superblock followed by MaxExtents fixed-size extents.
//     Every extent starts with a self-describing header (stream id, logical
//     index, used bytes, head skip, generation) so metadata can be rebuilt
//     from the data file alone.
//   - meta/: a Pebble database with the container header (c/h), one record
//     per stream (s/{id}) and the alias index (a/{alias}).
//
// Stream offsets are absolute: extent k of a stream holds bytes
// [(firstLogical+k)*P, (firstLogical+k+1)*P) where P is the extent size
// minus its header. Head truncation drops whole extents from the front,
// tail truncation drops them from the back; both return extents to the
// container's free pool.
//
// # Write ordering
//
// Data and headers are written before the metadata batch that makes them
// visible. In always mode the extent file is synced first and the batch
// commits with a WAL sync; in interval and never modes batches commit
// unsynced and a flush syncs the extent file before the WAL. A crash between
// the two leaves the old metadata authoritative. An operation that fails
// after writing headers puts the committed headers back. Every structural
// mutation bumps the container generation inside the same batch.
//
// # Usage
//
//	c, _ := physlog.Open(ctx, dir, cid, physlog.Options{CreateIfMissing: true})
//	s, _ := c.OpenLogicalStream(ctx, sid, "orders")
//	tail, _ := s.Append(ctx, payload)
//	b, _ := s.Read(ctx, 0, 4096)
//	_ = s.TruncateHead(ctx, tail/2)
//	_ = s.Close(ctx)
//	_ = c.Close(ctx)
//
// # Recovery
//
// Open validates every metadata record against the superblock geometry and
// the other records. Corrupt records are reconstructed from extent headers,
// the highest generation winning per logical extent, and the result is
// validated again. After Options.MaxRebuildAttempts failed attempts Open
// returns ErrUnrecoverable.
package physlog
