package guard

import (
	"context"
	"sync"
	"time"
)

// BreakerState is the circuit state of one downstream dependency.
type BreakerState int

// Circuit states
const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a single circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default 3.
	FailureThreshold uint32

	// ResetTimeout is how long the circuit stays open before one half-open
	// probe is allowed through. Default 30s.
	ResetTimeout time.Duration

	// OnStateChange is called outside the breaker lock when the state moves.
	OnStateChange func(from, to BreakerState)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 30 * time.Second
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker. One instance guards one
// logical downstream dependency and is shared by all of its callers.
//
// Closed passes calls through and counts consecutive failures; reaching the
// threshold opens the circuit. Open fails fast until ResetTimeout has
// elapsed since the last failure, then exactly one probe is let through
// (half-open). Any success, in any state, closes the circuit and resets the
// failure count; a failed probe reopens it.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures uint32
	lastFailureAt       time.Time
	probing             bool
}

// NewBreaker creates a Breaker. A nil clock uses time.Now.
func NewBreaker(cfg BreakerConfig, clock func() time.Time) *Breaker {
	if clock == nil {
		clock = time.Now
	}
	return &Breaker{cfg: cfg.withDefaults(), now: clock}
}

// State returns the current state. Half-open is reported only while a probe
// is in flight; an open circuit past its cooldown still reports open until
// a call admits the probe.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Execute runs op under the breaker. While open it returns ErrCircuitOpen
// without invoking op. After ResetTimeout it admits a single probe; a second
// caller arriving while the probe is in flight still fails fast.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	if err := b.before(); err != nil {
		return nil, err
	}
	v, err := op(ctx)
	b.after(err)
	return v, err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailureAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.setStateLocked(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	}
	return ErrCircuitOpen
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil {
		b.consecutiveFailures = 0
		b.setStateLocked(StateClosed)
		return
	}

	b.consecutiveFailures++
	b.lastFailureAt = b.now()
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.setStateLocked(StateOpen)
	}
}

func (b *Breaker) setStateLocked(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(from, to)
	}
}
