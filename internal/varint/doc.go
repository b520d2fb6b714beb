// Package varint implements the variable-length integer framing used by
// sharedlog extent headers and stream records.
//
// # Format
//
// A 32-bit value is written as 1 to 5 bytes. Each byte carries seven payload
// bits, least significant group first; the top bit of a byte is set when
// another byte follows. The fifth byte can only carry the top four bits of the
// value and must not have its continuation bit set.
//
//	0        -> 00
//	127      -> 7f
//	128      -> 80 01
//	16384    -> 80 80 01
//	2^32 - 1 -> ff ff ff ff 0f
//
// Signed values are written as their two's-complement bit pattern, so any
// negative int32 costs five bytes.
//
// Records are a varint length followed by that many payload bytes:
//
//	buf = varint.AppendRecord(buf, payload)
//	p, err := varint.ReadRecord(bufio.NewReader(f), 1<<20)
package varint
