// Package channel implements the bounded, ordered, per-channel event buffer
// that every transport replays from.
//
// Each channel holds at most maxEvents events; on overflow the oldest are
// evicted, so delivery to a cursor that predates eviction is not guaranteed.
// Within a channel IDs are strictly increasing and production timestamps are
// non-decreasing, which makes both cursor schemes (lastEventId for
// streaming/duplex, producedAt timestamps for polling) safe to resume from.
//
// The store intentionally does not push to subscribers; transports either
// poll with a cursor or capture Appended, read, and block until the next
// append when the read comes back empty. Swapping the
// in-memory backing for a durable log only has to preserve the
// Append/ReadSince contract.
package channel
