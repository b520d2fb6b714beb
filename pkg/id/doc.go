// Package id provides the 128-bit identifiers used for containers and
// streams.
//
// # Format
//
// An ID is 16 bytes. Its canonical text form is the GUID layout
// 8-4-4-4-12 in lowercase hex; Parse also accepts the braced form written by
// older tooling ({3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}) and 32 bare hex
// digits. Bytes are stored in the order their hex digits appear in the text,
// so byte-wise comparison matches comparison of the canonical strings.
//
// # Generation
//
// Generator produces time-ordered IDs: [8 bytes ms_timestamp][8 bytes
// sequence], big-endian. If the system clock regresses it pins to the last
// seen millisecond; if the sequence would overflow it waits for the next
// millisecond.
//
//	g := id.NewGenerator()
//	streamID := g.Next()
//	fmt.Println(streamID.Braced())
package id
