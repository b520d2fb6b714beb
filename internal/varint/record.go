package varint

import (
	"errors"
	"fmt"
	"io"
)

// ErrRecordTooLarge is returned by ReadRecord when a length prefix exceeds
// the caller's limit.
var ErrRecordTooLarge = errors.New("varint: record exceeds limit")

// Reader is the input accepted by ReadRecord. *bufio.Reader and
// *bytes.Reader satisfy it.
type Reader interface {
	io.Reader
	io.ByteReader
}

// RecordSize returns the framed size of a payload of n bytes.
func RecordSize(n int) int { return EncodedSize(uint32(n)) + n }

// AppendRecord appends varint(len(payload)) | payload to dst.
func AppendRecord(dst, payload []byte) []byte {
	dst = AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// ReadRecord reads one framed record. A limit of zero disables the size
// check. A payload cut short by end of input yields ErrTruncated.
func ReadRecord(r Reader, limit uint32) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, n, limit)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return buf, nil
}

// Record decodes one framed record from the start of buf and returns the
// payload (aliasing buf) and the number of bytes consumed.
func Record(buf []byte) ([]byte, int, error) {
	n, hdr, err := Uint32(buf)
	if err != nil {
		return nil, 0, err
	}
	end := hdr + int(n)
	if end > len(buf) || end < hdr {
		return nil, 0, ErrTruncated
	}
	return buf[hdr:end], end, nil
}
