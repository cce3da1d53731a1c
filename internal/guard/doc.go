// Package guard protects every outbound call with three composed
// mechanisms, applied in order:
//
//  1. Deduplication: concurrent identical calls (same idempotency key)
//     collapse onto one shared in-flight invocation, and each key's
//     invocation rate is capped per rolling window (ErrRateLimited above
//     the budget) so runaway retry loops cannot amplify load.
//  2. Cache: an optional short-TTL read-through cache on the same key;
//     mutations bypass it and invalidate the key on success.
//  3. Circuit breaker: one consecutive-failure breaker per logical
//     dependency; open circuits fail fast with ErrCircuitOpen and admit a
//     single probe after the reset timeout.
//
// State lives in an injected Registry, one entry per dependency key, with
// per-entry synchronization. Every guarded call also carries its own
// timeout so callers never hang beyond the configured deadline.
package guard
