package physlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rzbill/sharedlog/pkg/id"
)

// Metadata keyspace (Pebble, under <container>/meta):
//   - c/h          container header record
//   - s/{id16}     stream record
//   - a/{alias}    alias index: alias -> stream id
//
// Values are protobuf wire-format messages followed by a big-endian crc32c
// of the message bytes.

var (
	keyHeader   = []byte("c/h")
	streamSeg   = []byte("s/")
	aliasSeg    = []byte("a/")
	errChecksum = errors.New("record checksum mismatch")
)

func keyStream(sid id.ID) []byte {
	k := make([]byte, 0, len(streamSeg)+len(sid))
	k = append(k, streamSeg...)
	return append(k, sid[:]...)
}

func keyAlias(alias string) []byte {
	k := make([]byte, 0, len(aliasSeg)+len(alias))
	k = append(k, aliasSeg...)
	return append(k, alias...)
}

// prefixEnd returns the exclusive upper bound of all keys starting with p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	end[len(end)-1]++
	return end
}

func seal(msg []byte) []byte {
	return binary.BigEndian.AppendUint32(msg, crc32.Checksum(msg, castagnoli))
}

func unseal(v []byte) ([]byte, error) {
	if len(v) < 4 {
		return nil, errChecksum
	}
	msg := v[:len(v)-4]
	if crc32.Checksum(msg, castagnoli) != binary.BigEndian.Uint32(v[len(v)-4:]) {
		return nil, errChecksum
	}
	return msg, nil
}

// walkFields calls fn for each field of a wire-format message. fn returns
// the number of bytes it consumed, or a negative value to skip the field.
func walkFields(msg []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return protowire.ParseError(n)
		}
		msg = msg[n:]
		m := fn(num, typ, msg)
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		msg = msg[m:]
	}
	return nil
}

// containerRecord mirrors the superblock plus the mutable generation.
type containerRecord struct {
	version     uint32
	containerID id.ID
	extentSize  uint32
	maxExtents  uint32
	generation  uint64
	createdAtMs int64
}

func (r containerRecord) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.version))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, r.containerID[:])
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.extentSize))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.maxExtents))
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, r.generation)
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.createdAtMs))
	return seal(b)
}

func unmarshalContainerRecord(v []byte) (containerRecord, error) {
	msg, err := unseal(v)
	if err != nil {
		return containerRecord{}, err
	}
	var r containerRecord
	var sawID bool
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case typ == protowire.VarintType && num != 2:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n
			}
			switch num {
			case 1:
				r.version = uint32(x)
			case 3:
				r.extentSize = uint32(x)
			case 4:
				r.maxExtents = uint32(x)
			case 5:
				r.generation = x
			case 6:
				r.createdAtMs = int64(x)
			}
			return n
		case num == 2 && typ == protowire.BytesType:
			x, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			var ok bool
			r.containerID, ok = id.FromBytes(x)
			sawID = ok
			return n
		}
		return -1
	})
	if err != nil {
		return containerRecord{}, err
	}
	if !sawID {
		return containerRecord{}, errors.New("container record without id")
	}
	return r, nil
}

// streamRecord is the durable state of one logical stream. Extent k of the
// list holds absolute offsets [(firstLogical+k)*P, (firstLogical+k+1)*P)
// where P is the extent payload size.
type streamRecord struct {
	id           id.ID
	alias        string
	head         uint64
	tail         uint64
	firstLogical uint32
	extents      []uint32
	createdAtMs  int64
}

func (r *streamRecord) clone() streamRecord {
	cp := *r
	cp.extents = append([]uint32(nil), r.extents...)
	return cp
}

func (r *streamRecord) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, r.id[:])
	if r.alias != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, r.alias)
	}
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, r.head)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, r.tail)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.firstLogical))
	var packed []byte
	for _, e := range r.extents {
		packed = protowire.AppendVarint(packed, uint64(e))
	}
	b = protowire.AppendTag(b, 6, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.createdAtMs))
	return seal(b)
}

func unmarshalStreamRecord(v []byte) (streamRecord, error) {
	msg, err := unseal(v)
	if err != nil {
		return streamRecord{}, err
	}
	var r streamRecord
	var sawID bool
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n
			}
			switch num {
			case 3:
				r.head = x
			case 4:
				r.tail = x
			case 5:
				r.firstLogical = uint32(x)
			case 7:
				r.createdAtMs = int64(x)
			}
			return n
		case typ == protowire.BytesType:
			x, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			switch num {
			case 1:
				r.id, sawID = id.FromBytes(x)
			case 2:
				r.alias = string(x)
			case 6:
				for len(x) > 0 {
					e, m := protowire.ConsumeVarint(x)
					if m < 0 {
						return m
					}
					r.extents = append(r.extents, uint32(e))
					x = x[m:]
				}
			}
			return n
		}
		return -1
	})
	if err != nil {
		return streamRecord{}, err
	}
	if !sawID {
		return streamRecord{}, errors.New("stream record without id")
	}
	return r, nil
}

func marshalAlias(sid id.ID) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, sid[:])
	return seal(b)
}

func unmarshalAlias(v []byte) (id.ID, error) {
	msg, err := unseal(v)
	if err != nil {
		return id.Nil, err
	}
	var sid id.ID
	var ok bool
	err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 || typ != protowire.BytesType {
			return -1
		}
		x, n := protowire.ConsumeBytes(b)
		if n >= 0 {
			sid, ok = id.FromBytes(x)
		}
		return n
	})
	if err != nil {
		return id.Nil, err
	}
	if !ok {
		return id.Nil, fmt.Errorf("alias record without stream id")
	}
	return sid, nil
}
