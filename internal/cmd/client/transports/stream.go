package transports

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/beamhq/beam/internal/channel"
)

// StreamTransport subscribes over Server-Sent Events. The server's
// heartbeat comments count as liveness; a dropped connection surfaces as a
// read error and feeds the state machine.
type StreamTransport struct {
	// Client overrides the HTTP client. Nil uses http.DefaultClient,
	// which has no overall timeout and so does not kill long streams.
	Client *http.Client
}

func (t *StreamTransport) Name() string { return "stream" }

func (t *StreamTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

func (t *StreamTransport) Subscribe(ctx context.Context, req SubscribeRequest, onEvent EventFunc) error {
	u, err := streamURL(req)
	if err != nil {
		return err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	hreq.Header.Set("Accept", "text/event-stream")
	if req.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if req.LastEventID != "" {
		hreq.Header.Set("Last-Event-ID", req.LastEventID)
	}

	resp, err := t.client().Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("stream connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream connect: %s", resp.Status)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := t.dispatch(req, eventName, data.String(), onEvent); err != nil {
				return err
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return fmt.Errorf("stream ended")
}

func (t *StreamTransport) dispatch(req SubscribeRequest, eventName, data string, onEvent EventFunc) error {
	switch eventName {
	case "connected":
		if req.OnConnect != nil {
			req.OnConnect()
		}
		return nil
	case "error":
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal([]byte(data), &e)
		return fmt.Errorf("stream server: %s", e.Error)
	}
	if data == "" {
		return nil
	}
	var ev channel.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil || ev.ID == "" {
		return nil
	}
	return onEvent(ev)
}

func streamURL(req SubscribeRequest) (string, error) {
	base, err := url.Parse(req.BaseURL)
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	base.Path = "/v1/events/stream"
	q := url.Values{}
	q.Set("channelKey", req.ChannelKey)
	if req.LastEventID != "" {
		q.Set("lastEventId", req.LastEventID)
	}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}
