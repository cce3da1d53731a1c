package conn

import (
	"testing"
	"time"
)

var testPolicy = Policy{
	BaseDelay:      time.Second,
	MaxDelay:       30 * time.Second,
	MaxAttempts:    5,
	Demote:         true,
	PollRetryDelay: 5 * time.Second,
}

func now() time.Time { return time.Unix(1000, 0) }

func TestDialSucceededOpensAndResets(t *testing.T) {
	s := New(TransportDuplex)
	s.ReconnectAttempts = 3
	s, acts := Step(s, DialSucceeded{Cursor: "aa"}, testPolicy, now())
	if s.Status != StatusOpen {
		t.Fatalf("want open, got %v", s.Status)
	}
	if s.ReconnectAttempts != 0 {
		t.Fatalf("attempts must reset")
	}
	if s.Cursor != "aa" {
		t.Fatalf("cursor not initialized")
	}
	if len(acts) != 0 {
		t.Fatalf("unexpected actions: %v", acts)
	}
}

func TestErrorSchedulesRetryOnSameTier(t *testing.T) {
	s := New(TransportDuplex)
	s.Status = StatusOpen
	s, acts := Step(s, TransportError{Err: ErrTransportClosed}, testPolicy, now())
	if s.Transport != TransportDuplex {
		t.Fatalf("must retry same tier first")
	}
	if len(acts) != 2 {
		t.Fatalf("want sleep+dial, got %v", acts)
	}
	sl, ok := acts[0].(Sleep)
	if !ok || sl.Delay != time.Second {
		t.Fatalf("want 1s backoff, got %v", acts[0])
	}
	if d, ok := acts[1].(Dial); !ok || d.Transport != TransportDuplex {
		t.Fatalf("want dial duplex, got %v", acts[1])
	}
}

func TestBackoffGrowsAcrossAttempts(t *testing.T) {
	s := New(TransportDuplex)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		var acts []Action
		s, acts = Step(s, TransportError{}, testPolicy, now())
		if sl, ok := acts[0].(Sleep); !ok || sl.Delay != w {
			t.Fatalf("attempt %d: want %v, got %v", i+1, w, acts[0])
		}
	}
}

func TestDemotionChain(t *testing.T) {
	s := New(TransportDuplex)
	// exhaust the duplex budget
	for i := uint(0); i < testPolicy.MaxAttempts; i++ {
		s, _ = Step(s, TransportError{}, testPolicy, now())
	}
	if s.Transport != TransportStream {
		t.Fatalf("want demotion to stream, got %v", s.Transport)
	}
	if s.ReconnectAttempts != 0 {
		t.Fatalf("attempts must reset on the new tier")
	}
	// exhaust the streaming budget
	for i := uint(0); i < testPolicy.MaxAttempts; i++ {
		s, _ = Step(s, TransportError{}, testPolicy, now())
	}
	if s.Transport != TransportPoll {
		t.Fatalf("want demotion to poll, got %v", s.Transport)
	}
}

func TestDemotionEmitsAction(t *testing.T) {
	s := New(TransportDuplex)
	s.ReconnectAttempts = testPolicy.MaxAttempts - 1
	s, acts := Step(s, TransportError{}, testPolicy, now())
	if len(acts) != 2 {
		t.Fatalf("want demoted+dial, got %v", acts)
	}
	d, ok := acts[0].(Demoted)
	if !ok || d.From != TransportDuplex || d.To != TransportStream {
		t.Fatalf("demoted action: %v", acts[0])
	}
	if dial, ok := acts[1].(Dial); !ok || dial.Transport != TransportStream {
		t.Fatalf("dial action: %v", acts[1])
	}
	_ = s
}

func TestPollNeverDemotesOrFails(t *testing.T) {
	s := New(TransportPoll)
	for i := 0; i < 30; i++ {
		var acts []Action
		s, acts = Step(s, TransportError{}, testPolicy, now())
		if s.Status == StatusFailed {
			t.Fatalf("poll tier must not fail terminally")
		}
		if s.Transport != TransportPoll {
			t.Fatalf("poll tier must not demote")
		}
		if s.ReconnectAttempts == testPolicy.MaxAttempts {
			t.Fatalf("attempts should roll over on the floor tier")
		}
		_ = acts
	}
}

func TestPollExhaustionSurfacesDegraded(t *testing.T) {
	s := New(TransportPoll)
	s.ReconnectAttempts = testPolicy.MaxAttempts - 1
	s, acts := Step(s, TransportError{}, testPolicy, now())
	if len(acts) != 3 {
		t.Fatalf("want degraded+sleep+dial, got %v", acts)
	}
	if _, ok := acts[0].(Degraded); !ok {
		t.Fatalf("want degraded, got %v", acts[0])
	}
	if sl, ok := acts[1].(Sleep); !ok || sl.Delay != testPolicy.PollRetryDelay {
		t.Fatalf("want poll pace, got %v", acts[1])
	}
	_ = s
}

func TestNoDemotePolicyFailsTerminally(t *testing.T) {
	pol := testPolicy
	pol.Demote = false
	s := New(TransportDuplex)
	s.ReconnectAttempts = pol.MaxAttempts - 1
	s, acts := Step(s, TransportError{}, pol, now())
	if s.Status != StatusFailed {
		t.Fatalf("want failed, got %v", s.Status)
	}
	if len(acts) != 1 {
		t.Fatalf("want stop, got %v", acts)
	}
	if _, ok := acts[0].(Stop); !ok {
		t.Fatalf("want stop action")
	}
}

func TestLivenessTimeoutDrivesReconnect(t *testing.T) {
	s := New(TransportStream)
	s.Status = StatusOpen
	s, acts := Step(s, LivenessTimeout{}, testPolicy, now())
	if s.Status != StatusConnecting {
		t.Fatalf("want reconnect scheduling, got %v", s.Status)
	}
	if len(acts) == 0 {
		t.Fatalf("expected retry actions")
	}
}

func TestCursorOnlyMovesForward(t *testing.T) {
	s := New(TransportStream)
	s, _ = Step(s, DialSucceeded{Cursor: "05"}, testPolicy, now())
	s, _ = Step(s, BatchDelivered{Cursor: "09"}, testPolicy, now())
	if s.Cursor != "09" {
		t.Fatalf("cursor should advance: %s", s.Cursor)
	}
	s, _ = Step(s, BatchDelivered{Cursor: "03"}, testPolicy, now())
	if s.Cursor != "09" {
		t.Fatalf("cursor must never rewind: %s", s.Cursor)
	}
}

func TestCloseIsTerminalAndStops(t *testing.T) {
	s := New(TransportDuplex)
	s.Status = StatusOpen
	s, acts := Step(s, Close{}, testPolicy, now())
	if s.Status != StatusClosed {
		t.Fatalf("want closed")
	}
	if len(acts) != 1 {
		t.Fatalf("want stop, got %v", acts)
	}
	// terminal: further inputs are ignored
	s2, acts2 := Step(s, TransportError{}, testPolicy, now())
	if s2.Status != StatusClosed || len(acts2) != 0 {
		t.Fatalf("closed must ignore inputs")
	}
}

func TestBatchDeliveredRefreshesLiveness(t *testing.T) {
	s := New(TransportDuplex)
	s, _ = Step(s, DialSucceeded{}, testPolicy, time.Unix(1000, 0))
	later := time.Unix(2000, 0)
	s, _ = Step(s, BatchDelivered{Cursor: "aa"}, testPolicy, later)
	if !s.LastLivenessAt.Equal(later) {
		t.Fatalf("liveness timestamp not refreshed")
	}
}
