package wsserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	cfgpkg "github.com/beamhq/beam/internal/config"
	"github.com/beamhq/beam/internal/runtime"
	deliverysvc "github.com/beamhq/beam/internal/services/delivery"
)

func dialTest(t *testing.T, query string) (*runtime.Runtime, *websocket.Conn) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	ts := httptest.NewServer(NewHandler(rt, nil))
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws" + query
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return rt, c
}

func readFrame(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return f
}

func TestSessionSendsConnectedFrame(t *testing.T) {
	_, c := dialTest(t, "")
	f := readFrame(t, c)
	if f.Type != frameConnected || f.SessionID == "" {
		t.Fatalf("want connected frame with session id, got %+v", f)
	}
}

func TestSessionDeliversSubscribedEvents(t *testing.T) {
	rt, c := dialTest(t, "?channelKey=team-42")
	if f := readFrame(t, c); f.Type != frameConnected {
		t.Fatalf("want connected first, got %+v", f)
	}

	svc := deliverysvc.New(rt)
	ev, err := svc.Publish(context.Background(), deliverysvc.PublishRequest{
		ChannelKey: "team-42", Type: "comment.created", Payload: json.RawMessage(`{"projectId":"p1"}`),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	f := readFrame(t, c)
	if f.Type != frameEvent || f.Event == nil || f.Event.ID != ev.ID {
		t.Fatalf("want event frame for %s, got %+v", ev.ID, f)
	}
}

func TestSessionPublishFrameAcks(t *testing.T) {
	rt, c := dialTest(t, "")
	if f := readFrame(t, c); f.Type != frameConnected {
		t.Fatalf("want connected first, got %+v", f)
	}

	pub := frame{Type: framePublish, ChannelKey: "team-42", EventType: "t", Payload: json.RawMessage(`{}`)}
	if err := c.WriteJSON(pub); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, c)
	if f.Type != framePublished || f.EventID == "" {
		t.Fatalf("want published ack, got %+v", f)
	}
	evs := rt.Store().ReadAll("team-42")
	if len(evs) != 1 || evs[0].ID != f.EventID {
		t.Fatalf("store mismatch: %v vs ack %s", evs, f.EventID)
	}
}

func TestSessionSubscribeFrameNarrows(t *testing.T) {
	rt, c := dialTest(t, "")
	if f := readFrame(t, c); f.Type != frameConnected {
		t.Fatalf("want connected first, got %+v", f)
	}

	sub := frame{Type: frameSubscribe, ChannelKey: "team-42", Filter: `type == "competitor.alert"`}
	if err := c.WriteJSON(sub); err != nil {
		t.Fatalf("write: %v", err)
	}

	svc := deliverysvc.New(rt)
	ctx := context.Background()
	if _, err := svc.Publish(ctx, deliverysvc.PublishRequest{ChannelKey: "team-42", Type: "comment.created", Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want, err := svc.Publish(ctx, deliverysvc.PublishRequest{ChannelKey: "team-42", Type: "competitor.alert", Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	f := readFrame(t, c)
	if f.Type != frameEvent || f.Event == nil || f.Event.ID != want.ID {
		t.Fatalf("filter should pass only the alert, got %+v", f)
	}
}

func TestSessionRejectsUnknownFrame(t *testing.T) {
	_, c := dialTest(t, "")
	if f := readFrame(t, c); f.Type != frameConnected {
		t.Fatalf("want connected first, got %+v", f)
	}
	if err := c.WriteJSON(frame{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, c)
	if f.Type != frameError {
		t.Fatalf("want error frame, got %+v", f)
	}
}
