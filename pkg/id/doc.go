// Package id provides 128-bit, lexicographically sortable event identifiers.
//
// # Format
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise (and therefore hex string) comparison preserves chronological
// order, and IDs generated within the same millisecond remain strictly
// increasing by sequence. This makes an ID directly usable as an event
// cursor: "everything with a larger ID happened later".
//
// # Monotonicity
//
// The Generator ensures per-process monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     increments the sequence to avoid going backwards.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond before emitting the next ID.
//
// Usage
//
//	g := id.NewGenerator()
//	eventID := g.Next()
//	s := eventID.String()      // hex cursor on the wire
//	back, _ := id.Parse(s)     // round-trips
package id
