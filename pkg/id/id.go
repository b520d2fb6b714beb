package id

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit identifier.
type ID [16]byte

// Nil is the all-zero ID.
var Nil ID

// Bytes returns a copy of the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// IsNil reports whether i is the all-zero ID.
func (i ID) IsNil() bool { return i == Nil }

// String returns the canonical lowercase 8-4-4-4-12 form.
func (i ID) String() string {
	out := make([]byte, 0, 36)
	return string(appendDashed(out, i[:]))
}

// Braced returns the uppercase {8-4-4-4-12} form used by the repair tool.
func (i ID) Braced() string {
	out := make([]byte, 0, 38)
	out = append(out, '{')
	out = appendDashed(out, i[:])
	for k := 1; k < len(out); k++ {
		if out[k] >= 'a' && out[k] <= 'f' {
			out[k] -= 'a' - 'A'
		}
	}
	return string(append(out, '}'))
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// FromBytes copies a 16-byte slice into an ID.
func FromBytes(b []byte) (ID, bool) {
	var i ID
	if len(b) != len(i) {
		return Nil, false
	}
	copy(i[:], b)
	return i, true
}

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	switch {
	case ms != g.lastMs:
		g.sequence = 0
	case g.sequence == math.MaxUint64:
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond / 8)
			ms = NowMs()
		}
		g.sequence = 0
	default:
		g.sequence++
	}
	g.lastMs = ms

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:16], g.sequence)
	return out
}

const hexdigits = "0123456789abcdef"

func appendDashed(dst, b []byte) []byte {
	for k, v := range b {
		if k == 4 || k == 6 || k == 8 || k == 10 {
			dst = append(dst, '-')
		}
		dst = append(dst, hexdigits[v>>4], hexdigits[v&0x0f])
	}
	return dst
}
