package deliverysvc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beamhq/beam/internal/auth"
	"github.com/beamhq/beam/internal/channel"
	cfgpkg "github.com/beamhq/beam/internal/config"
	"github.com/beamhq/beam/internal/runtime"
	"github.com/beamhq/beam/pkg/id"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	return New(rt)
}

type captureSink struct {
	ctx context.Context

	mu     sync.Mutex
	events []channel.Event
}

func (c *captureSink) Send(ev channel.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) Context() context.Context { return c.ctx }
func (c *captureSink) Flush() error             { return nil }

func (c *captureSink) snapshot() []channel.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]channel.Event(nil), c.events...)
}

func publishN(t *testing.T, s *Service, key string, n int) []channel.Event {
	t.Helper()
	out := make([]channel.Event, 0, n)
	for i := 0; i < n; i++ {
		ev, err := s.Publish(context.Background(), PublishRequest{
			ChannelKey: key,
			Type:       "comment.created",
			Payload:    json.RawMessage(`{"projectId":"p1"}`),
		})
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestPublishValidation(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Publish(context.Background(), PublishRequest{Type: "x"}); !errors.Is(err, channel.ErrEmptyChannel) {
		t.Fatalf("want ErrEmptyChannel, got %v", err)
	}
	if _, err := s.Publish(context.Background(), PublishRequest{ChannelKey: "team-42"}); !errors.Is(err, channel.ErrEmptyType) {
		t.Fatalf("want ErrEmptyType, got %v", err)
	}
}

type denyAll struct{}

func (denyAll) Authorize(ctx context.Context, principal, channelKey string, role auth.Role) error {
	return auth.ErrDenied
}

func TestPublishAuthorizationDenied(t *testing.T) {
	rt, err := runtime.Open(runtime.Options{Config: cfgpkg.Default(), Authorizer: denyAll{}})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	s := New(rt)
	_, err = s.Publish(context.Background(), PublishRequest{ChannelKey: "team-42", Type: "t"})
	if !errors.Is(err, auth.ErrDenied) {
		t.Fatalf("want ErrDenied, got %v", err)
	}
}

func TestSubscribeReplaysFromCursorThenLive(t *testing.T) {
	s := newTestService(t)
	evs := publishN(t, s, "team-42", 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &captureSink{ctx: ctx}

	done := make(chan error, 1)
	go func() {
		done <- s.Subscribe(ctx, SubscribeRequest{ChannelKey: "team-42", LastEventID: evs[2].ID}, sink)
	}()

	// replay must surface exactly e4, e5
	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })
	got := sink.snapshot()
	if got[0].ID != evs[3].ID || got[1].ID != evs[4].ID {
		t.Fatalf("replay wrong: %v", got)
	}

	// a subsequent publish is pushed live
	e6 := publishN(t, s, "team-42", 1)[0]
	waitFor(t, func() bool { return len(sink.snapshot()) == 3 })
	got = sink.snapshot()
	if got[2].ID != e6.ID {
		t.Fatalf("live push wrong: %v", got[2].ID)
	}
	for i := 1; i < len(got); i++ {
		if !(got[i-1].ID < got[i].ID) {
			t.Fatalf("order violated at %d", i)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func TestSubscribeLimitStops(t *testing.T) {
	s := newTestService(t)
	publishN(t, s, "team-42", 5)

	sink := &captureSink{ctx: context.Background()}
	err := s.Subscribe(context.Background(), SubscribeRequest{ChannelKey: "team-42", Limit: 3}, sink)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n := len(sink.snapshot()); n != 3 {
		t.Fatalf("want 3 events, got %d", n)
	}
}

func TestSubscribeFilterNarrows(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Publish(ctx, PublishRequest{ChannelKey: "team-42", Type: "comment.created", Payload: json.RawMessage(`{"projectId":"p1"}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := s.Publish(ctx, PublishRequest{ChannelKey: "team-42", Type: "competitor.alert", Payload: json.RawMessage(`{"projectId":"p2"}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sink := &captureSink{ctx: ctx}
	err := s.Subscribe(ctx, SubscribeRequest{ChannelKey: "team-42", Filter: `type == "competitor.alert"`, Limit: 1}, sink)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	got := sink.snapshot()
	if len(got) != 1 || got[0].Type != "competitor.alert" {
		t.Fatalf("filter missed: %v", got)
	}
}

func TestSubscribeBadFilter(t *testing.T) {
	s := newTestService(t)
	sink := &captureSink{ctx: context.Background()}
	if err := s.Subscribe(context.Background(), SubscribeRequest{ChannelKey: "team-42", Filter: "type =="}, sink); err == nil {
		t.Fatalf("want compile error")
	}
}

// tickMillis advances the ID clock one millisecond per use, so each publish
// lands in its own millisecond.
func tickMillis(t *testing.T, start int64) {
	t.Helper()
	prev := id.NowMs
	ms := start
	id.NowMs = func() int64 { ms++; return ms }
	t.Cleanup(func() { id.NowMs = prev })
}

func TestPollPaginationScenario(t *testing.T) {
	tickMillis(t, 1000)
	s := newTestService(t)
	evs := publishN(t, s, "team-42", 5)
	t0 := evs[0].ProducedAtMs - 1

	page1, err := s.Poll(context.Background(), PollRequest{ChannelKey: "team-42", SinceMs: t0, Limit: 2})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(page1.Events) != 2 || !page1.HasMore {
		t.Fatalf("page1: %d events hasMore=%v", len(page1.Events), page1.HasMore)
	}
	if page1.NextSinceMs != page1.Events[1].ProducedAtMs {
		t.Fatalf("nextSince must be the 2nd event's timestamp")
	}

	page2, err := s.Poll(context.Background(), PollRequest{ChannelKey: "team-42", SinceMs: page1.NextSinceMs, Limit: 2})
	if err != nil {
		t.Fatalf("poll 2: %v", err)
	}
	for _, ev := range page2.Events {
		for _, prev := range page1.Events {
			if ev.ID == prev.ID {
				t.Fatalf("duplicate %s across pages", ev.ID)
			}
		}
	}
}

func TestPollEmptyKeepsCursor(t *testing.T) {
	s := newTestService(t)
	evs := publishN(t, s, "team-42", 1)
	after := evs[0].ProducedAtMs + 1000
	resp, err := s.Poll(context.Background(), PollRequest{ChannelKey: "team-42", SinceMs: after})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(resp.Events) != 0 || resp.HasMore || resp.NextSinceMs != after {
		t.Fatalf("empty poll must echo since: %+v", resp)
	}
}

func TestPollClampsLimit(t *testing.T) {
	tickMillis(t, 1000)
	s := newTestService(t)
	publishN(t, s, "team-42", 60)
	resp, err := s.Poll(context.Background(), PollRequest{ChannelKey: "team-42", Limit: 500})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(resp.Events) != 50 {
		t.Fatalf("limit must clamp to 50, got %d", len(resp.Events))
	}
	if !resp.HasMore {
		t.Fatalf("expected more past the clamped page")
	}
}

func TestPollSameMillisecondBurstNotSplit(t *testing.T) {
	prev := id.NowMs
	id.NowMs = func() int64 { return 1000 }
	t.Cleanup(func() { id.NowMs = prev })

	s := newTestService(t)
	publishN(t, s, "team-42", 5)

	// paging on NextSinceMs cannot address events within one millisecond,
	// so the burst must arrive on a single page even past the limit
	page1, err := s.Poll(context.Background(), PollRequest{ChannelKey: "team-42", SinceMs: 0, Limit: 2})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(page1.Events) != 5 || page1.HasMore {
		t.Fatalf("page1: %d events hasMore=%v, want the whole burst", len(page1.Events), page1.HasMore)
	}
	page2, err := s.Poll(context.Background(), PollRequest{ChannelKey: "team-42", SinceMs: page1.NextSinceMs, Limit: 2})
	if err != nil {
		t.Fatalf("poll 2: %v", err)
	}
	if len(page2.Events) != 0 || page2.HasMore {
		t.Fatalf("no events may be stranded past the burst: %+v", page2)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
