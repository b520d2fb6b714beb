package varint

import (
	"errors"
	"io"
)

// MaxLen is the longest encoding of a 32-bit value.
const MaxLen = 5

var (
	// ErrTruncated is returned when the input ends before a terminating byte.
	ErrTruncated = errors.New("varint: truncated input")
	// ErrOverlong is returned when the fifth byte still announces a
	// continuation or carries bits beyond the 32-bit range.
	ErrOverlong = errors.New("varint: encoding exceeds 5 bytes")
)

// EncodedSize returns the number of bytes PutUint32 writes for v.
func EncodedSize(v uint32) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	default:
		return 5
	}
}

// PutUint32 encodes v into dst and returns the number of bytes written.
// It panics if dst is too small; size it with EncodedSize or MaxLen.
func PutUint32(dst []byte, v uint32) int {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
	return i + 1
}

// AppendUint32 appends the encoding of v to dst.
func AppendUint32(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// PutInt32 encodes the two's-complement bit pattern of v.
func PutInt32(dst []byte, v int32) int { return PutUint32(dst, uint32(v)) }

// AppendInt32 appends the two's-complement encoding of v to dst.
func AppendInt32(dst []byte, v int32) []byte { return AppendUint32(dst, uint32(v)) }

// WriteUint32 writes the encoding of v to w one byte at a time.
func WriteUint32(w io.ByteWriter, v uint32) error {
	for v >= 0x80 {
		if err := w.WriteByte(byte(v) | 0x80); err != nil {
			return err
		}
		v >>= 7
	}
	return w.WriteByte(byte(v))
}

// WriteInt32 writes the two's-complement encoding of v to w.
func WriteInt32(w io.ByteWriter, v int32) error { return WriteUint32(w, uint32(v)) }

// ReadUint32 decodes one value from r. End of input before the terminating
// byte yields ErrTruncated; other read errors are returned unchanged.
func ReadUint32(r io.ByteReader) (uint32, error) {
	var v uint32
	for i := 0; i < MaxLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, ErrTruncated
			}
			return 0, err
		}
		if i == MaxLen-1 && b > 0x0f {
			return 0, ErrOverlong
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, nil
		}
	}
	return 0, ErrOverlong
}

// ReadInt32 decodes a value written by WriteInt32 or PutInt32.
func ReadInt32(r io.ByteReader) (int32, error) {
	v, err := ReadUint32(r)
	return int32(v), err
}

// Uint32 decodes a value from the start of buf and returns it together with
// the number of bytes consumed.
func Uint32(buf []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < MaxLen; i++ {
		if i >= len(buf) {
			return 0, 0, ErrTruncated
		}
		b := buf[i]
		if i == MaxLen-1 && b > 0x0f {
			return 0, 0, ErrOverlong
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrOverlong
}
