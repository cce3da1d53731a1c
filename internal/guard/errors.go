package guard

import "errors"

// ErrCircuitOpen is the fast-fail returned while a dependency's circuit is
// open. Callers should surface it as a degraded/unavailable signal, not a
// hard failure.
var ErrCircuitOpen = errors.New("circuit open")

// ErrRateLimited is returned when a key exceeds its dedup window budget.
// Callers should back off instead of retrying immediately.
var ErrRateLimited = errors.New("too many requests for key")
