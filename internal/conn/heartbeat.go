package conn

import (
	"context"
	"fmt"
	"time"
)

// HeartbeatConfig tunes the liveness protocol shared by the duplex and
// streaming transports.
type HeartbeatConfig struct {
	// Interval between liveness emissions. Default 30s.
	Interval time.Duration

	// Timeout is how long a liveness signal may be outstanding after an
	// emission before the connection is declared dead. Default 10s.
	Timeout time.Duration

	// Implicit treats a successful emit as the liveness signal. Set for
	// one-way transports (streaming) that have no pong channel; duplex
	// transports leave it unset and call Pong on transport-level pongs.
	Implicit bool
}

func (c HeartbeatConfig) withDefaults() HeartbeatConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Heartbeat detects silently-dead connections: every Interval it emits a
// liveness frame and expects a signal (a pong, or for implicit mode the
// emission succeeding) within Timeout. An emission failure is treated the
// same as a missed pong. The monitor stops when its context ends.
type Heartbeat struct {
	cfg  HeartbeatConfig
	emit func() error
	pong chan struct{}
}

// NewHeartbeat creates a monitor. emit sends one liveness frame on the
// underlying transport.
func NewHeartbeat(cfg HeartbeatConfig, emit func() error) *Heartbeat {
	return &Heartbeat{cfg: cfg.withDefaults(), emit: emit, pong: make(chan struct{}, 1)}
}

// Pong records an inbound liveness signal. Safe to call from any goroutine;
// extra pongs are dropped.
func (h *Heartbeat) Pong() {
	select {
	case h.pong <- struct{}{}:
	default:
	}
}

// Run drives the protocol until ctx ends or the connection is declared
// dead, in which case the fatal error is returned (nil on context
// cancellation). The caller feeds that error to the state machine as a
// LivenessTimeout/TransportError input.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		// drain any stale pong so the wait below observes only signals
		// that follow this emission
		select {
		case <-h.pong:
		default:
		}

		if err := h.emit(); err != nil {
			return fmt.Errorf("heartbeat emit: %w", err)
		}
		if h.cfg.Implicit {
			continue
		}

		timer := time.NewTimer(h.cfg.Timeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-h.pong:
			timer.Stop()
		case <-timer.C:
			return ErrLivenessTimeout
		}
	}
}
