package physlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rzbill/sharedlog/internal/varint"
)

// Reader reads a stream sequentially. It implements io.Reader and
// io.Seeker; Read returns io.EOF at the tail.
type Reader struct {
	s   *Stream
	ctx context.Context
	pos uint64
}

// NewReader returns a Reader positioned at offset.
func (s *Stream) NewReader(ctx context.Context, offset uint64) *Reader {
	return &Reader{s: s, ctx: ctx, pos: offset}
}

// Offset returns the position of the next Read.
func (r *Reader) Offset() uint64 { return r.pos }

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	err := r.s.read(r.ctx, r.pos, func(avail uint64) []byte {
		n = int(min(uint64(len(p)), avail))
		return p[:n]
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	r.pos += uint64(n)
	return n, nil
}

// Seek sets the next read position. io.SeekEnd is relative to the tail.
// Positions outside [Head, Tail] are reported by the next Read.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(r.pos)
	case io.SeekEnd:
		base = int64(r.s.Tail())
	default:
		return 0, fmt.Errorf("physlog: invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("%w: seek to negative offset %d", ErrBelowHead, next)
	}
	r.pos = uint64(next)
	return next, nil
}

// RecordReader iterates records written with AppendRecord.
type RecordReader struct {
	r     *Reader
	br    *bufio.Reader
	limit uint32
}

// NewRecordReader returns a RecordReader starting at offset, which must be
// a record boundary. Records larger than limit fail with
// varint.ErrRecordTooLarge; zero means no limit.
func (s *Stream) NewRecordReader(ctx context.Context, offset uint64, limit uint32) *RecordReader {
	r := s.NewReader(ctx, offset)
	return &RecordReader{r: r, br: bufio.NewReader(r), limit: limit}
}

// Next returns the next record payload, or io.EOF once the tail is reached
// on a record boundary. A record cut short by the tail yields
// varint.ErrTruncated.
func (rr *RecordReader) Next() ([]byte, error) {
	if _, err := rr.br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return varint.ReadRecord(rr.br, rr.limit)
}
