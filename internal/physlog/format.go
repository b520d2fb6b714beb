package physlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/rzbill/sharedlog/internal/varint"
	"github.com/rzbill/sharedlog/pkg/id"
)

// Data file layout:
//
//	[0, 4096)                     superblock
//	[4096 + i*extentSize, ...)    extent i: 64-byte header | payload
//
// Superblock: magic(8) | version(4) | container id(16) | extentSize(4) |
// maxExtents(4) | createdAtMs(8) | crc32c(4) over the preceding 44 bytes.
//
// Extent header: magic(4) | container id(16) | stream id(16) |
// varint logical index | varint used | varint head skip | zero pad |
// generation(8) at [52:60] | crc32c(4) at [60:64] over [0:60].
// A free extent has an all-zero header.

const (
	superblockSize   = 4096
	extentHeaderSize = 64
	formatVersion    = 1

	sbCRCOffset  = 44
	hdrGenOffset = 52
	hdrCRCOffset = 60
)

var (
	castagnoli      = crc32.MakeTable(crc32.Castagnoli)
	superblockMagic = [8]byte{'S', 'H', 'L', 'O', 'G', 'C', '0', '1'}
	extentMagic     = [4]byte{'S', 'L', 'X', '1'}
)

type superblock struct {
	containerID id.ID
	extentSize  uint32
	maxExtents  uint32
	createdAtMs int64
}

func (sb superblock) encode() []byte {
	b := make([]byte, superblockSize)
	copy(b[0:8], superblockMagic[:])
	binary.BigEndian.PutUint32(b[8:12], formatVersion)
	copy(b[12:28], sb.containerID[:])
	binary.BigEndian.PutUint32(b[28:32], sb.extentSize)
	binary.BigEndian.PutUint32(b[32:36], sb.maxExtents)
	binary.BigEndian.PutUint64(b[36:44], uint64(sb.createdAtMs))
	binary.BigEndian.PutUint32(b[sbCRCOffset:sbCRCOffset+4], crc32.Checksum(b[:sbCRCOffset], castagnoli))
	return b
}

func decodeSuperblock(b []byte) (superblock, error) {
	if len(b) < sbCRCOffset+4 || !bytes.Equal(b[0:8], superblockMagic[:]) {
		return superblock{}, fmt.Errorf("%w: bad superblock magic", ErrCorruptMetadata)
	}
	if crc32.Checksum(b[:sbCRCOffset], castagnoli) != binary.BigEndian.Uint32(b[sbCRCOffset:]) {
		return superblock{}, fmt.Errorf("%w: superblock checksum mismatch", ErrCorruptMetadata)
	}
	if v := binary.BigEndian.Uint32(b[8:12]); v != formatVersion {
		return superblock{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptMetadata, v)
	}
	var sb superblock
	copy(sb.containerID[:], b[12:28])
	sb.extentSize = binary.BigEndian.Uint32(b[28:32])
	sb.maxExtents = binary.BigEndian.Uint32(b[32:36])
	sb.createdAtMs = int64(binary.BigEndian.Uint64(b[36:44]))
	if sb.extentSize < MinExtentSize || sb.extentSize > MaxExtentSize || sb.maxExtents == 0 {
		return superblock{}, fmt.Errorf("%w: superblock geometry %d x %d", ErrCorruptMetadata, sb.extentSize, sb.maxExtents)
	}
	return sb, nil
}

// extentHeader makes an extent self-describing so metadata can be rebuilt
// from the data file alone.
type extentHeader struct {
	containerID id.ID
	streamID    id.ID
	logical     uint32
	used        uint32
	headSkip    uint32
	generation  uint64
}

func (h extentHeader) encode() []byte {
	b := make([]byte, extentHeaderSize)
	copy(b[0:4], extentMagic[:])
	copy(b[4:20], h.containerID[:])
	copy(b[20:36], h.streamID[:])
	n := 36
	n += varint.PutUint32(b[n:], h.logical)
	n += varint.PutUint32(b[n:], h.used)
	varint.PutUint32(b[n:], h.headSkip)
	binary.BigEndian.PutUint64(b[hdrGenOffset:hdrCRCOffset], h.generation)
	binary.BigEndian.PutUint32(b[hdrCRCOffset:], crc32.Checksum(b[:hdrCRCOffset], castagnoli))
	return b
}

// decodeExtentHeader returns ok=false for free (zero) or foreign headers.
func decodeExtentHeader(b []byte) (extentHeader, bool) {
	if len(b) < extentHeaderSize || !bytes.Equal(b[0:4], extentMagic[:]) {
		return extentHeader{}, false
	}
	if crc32.Checksum(b[:hdrCRCOffset], castagnoli) != binary.BigEndian.Uint32(b[hdrCRCOffset:]) {
		return extentHeader{}, false
	}
	var h extentHeader
	copy(h.containerID[:], b[4:20])
	copy(h.streamID[:], b[20:36])
	rest := b[36:hdrGenOffset]
	var n int
	var err error
	if h.logical, n, err = varint.Uint32(rest); err != nil {
		return extentHeader{}, false
	}
	rest = rest[n:]
	if h.used, n, err = varint.Uint32(rest); err != nil {
		return extentHeader{}, false
	}
	rest = rest[n:]
	if h.headSkip, _, err = varint.Uint32(rest); err != nil {
		return extentHeader{}, false
	}
	h.generation = binary.BigEndian.Uint64(b[hdrGenOffset:hdrCRCOffset])
	return h, true
}

var zeroHeader = make([]byte, extentHeaderSize)
