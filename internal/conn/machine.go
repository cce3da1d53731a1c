package conn

import (
	"errors"
	"time"
)

// Transport is a delivery tier, ranked by capability.
type Transport int

// Tiers, lowest to highest.
const (
	TransportNone Transport = iota
	TransportPoll
	TransportStream
	TransportDuplex
)

// String returns the tier name.
func (t Transport) String() string {
	switch t {
	case TransportDuplex:
		return "duplex"
	case TransportStream:
		return "stream"
	case TransportPoll:
		return "poll"
	default:
		return "none"
	}
}

// Lower returns the next tier down; Poll is the floor.
func (t Transport) Lower() Transport {
	switch t {
	case TransportDuplex:
		return TransportStream
	case TransportStream:
		return TransportPoll
	default:
		return TransportPoll
	}
}

// Status is the lifecycle state of one logical client connection.
type Status int

// Lifecycle states. Closed and Failed are terminal.
const (
	StatusConnecting Status = iota
	StatusOpen
	StatusReconnecting
	StatusFailed
	StatusClosed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport-level failures that drive the state machine. They are absorbed
// and retried internally; callers only see them once policy is exhausted.
var (
	ErrTransportClosed  = errors.New("transport closed")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrLivenessTimeout  = errors.New("liveness timeout")
)

// Policy is the reconnect/demotion policy injected from config.
type Policy struct {
	// BaseDelay is the first retry delay; MaxDelay caps the exponential
	// growth.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxAttempts is the retry budget per tier before demoting.
	MaxAttempts uint

	// Demote falls back to the next lower tier when a tier's budget is
	// exhausted. When false the session fails terminally instead.
	Demote bool

	// PollRetryDelay paces retries on the polling floor, which never
	// demotes or fails.
	PollRetryDelay time.Duration
}

// State is one logical client session's connection state. It is owned by a
// single session and mutated only through Step.
type State struct {
	Transport         Transport
	Status            Status
	Cursor            string
	ReconnectAttempts uint
	LastLivenessAt    time.Time
}

// New returns the initial state for a session starting on tier t.
func New(t Transport) State {
	return State{Transport: t, Status: StatusConnecting}
}

// Input is an asynchronous occurrence fed to the state machine.
type Input interface{ isInput() }

// DialSucceeded reports a successful (re)connect. Cursor carries the replay
// position the transport established, if any.
type DialSucceeded struct{ Cursor string }

// TransportError reports a non-explicit connection failure.
type TransportError struct{ Err error }

// LivenessTimeout reports a silently-dead connection detected by the
// heartbeat protocol.
type LivenessTimeout struct{}

// BatchDelivered reports that a batch was fully handed to the consumer;
// only then may the cursor advance (at-least-once).
type BatchDelivered struct{ Cursor string }

// Close is an explicit caller-initiated disconnect.
type Close struct{}

func (DialSucceeded) isInput()   {}
func (TransportError) isInput()  {}
func (LivenessTimeout) isInput() {}
func (BatchDelivered) isInput()  {}
func (Close) isInput()           {}

// Action is a side effect the driver must perform after a transition.
type Action interface{ isAction() }

// Dial instructs the driver to attempt a connection on the given tier.
type Dial struct{ Transport Transport }

// Sleep instructs the driver to wait before the next Dial.
type Sleep struct{ Delay time.Duration }

// Demoted reports a tier fallback, for logging/UI.
type Demoted struct{ From, To Transport }

// Degraded reports sustained failure on the polling floor; the session
// keeps retrying but the caller may surface a degraded banner.
type Degraded struct{}

// Stop instructs the driver to cancel timers/heartbeats and release the
// session.
type Stop struct{}

func (Dial) isAction()     {}
func (Sleep) isAction()    {}
func (Demoted) isAction()  {}
func (Degraded) isAction() {}
func (Stop) isAction()     {}

// Step is the pure transition function: given the current state, an input,
// the policy, and the current time, it returns the next state and the side
// effects to perform. It never touches a socket or a timer itself, which
// keeps every reconnect/demotion path testable without real I/O.
func Step(s State, in Input, pol Policy, now time.Time) (State, []Action) {
	if s.Status == StatusClosed || s.Status == StatusFailed {
		return s, nil
	}

	switch in := in.(type) {
	case Close:
		s.Status = StatusClosed
		return s, []Action{Stop{}}

	case DialSucceeded:
		s.Status = StatusOpen
		s.ReconnectAttempts = 0
		s.LastLivenessAt = now
		if in.Cursor > s.Cursor {
			s.Cursor = in.Cursor
		}
		return s, nil

	case BatchDelivered:
		if s.Status != StatusOpen {
			return s, nil
		}
		s.LastLivenessAt = now
		// cursor only moves forward
		if in.Cursor > s.Cursor {
			s.Cursor = in.Cursor
		}
		return s, nil

	case TransportError, LivenessTimeout:
		return stepFailure(s, pol)
	}
	return s, nil
}

func stepFailure(s State, pol Policy) (State, []Action) {
	s.Status = StatusReconnecting
	s.ReconnectAttempts++

	if s.ReconnectAttempts < pol.MaxAttempts {
		delay := Backoff(pol, s.ReconnectAttempts)
		s.Status = StatusConnecting
		return s, []Action{Sleep{Delay: delay}, Dial{Transport: s.Transport}}
	}

	// budget for this tier exhausted
	if s.Transport == TransportPoll {
		// floor tier: degraded, keep retrying at the poll pace
		s.Status = StatusConnecting
		s.ReconnectAttempts = 0
		return s, []Action{Degraded{}, Sleep{Delay: pol.PollRetryDelay}, Dial{Transport: TransportPoll}}
	}
	if pol.Demote {
		from := s.Transport
		s.Transport = from.Lower()
		s.ReconnectAttempts = 0
		s.Status = StatusConnecting
		return s, []Action{Demoted{From: from, To: s.Transport}, Dial{Transport: s.Transport}}
	}
	s.Status = StatusFailed
	return s, []Action{Stop{}}
}
