package transports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beamhq/beam/internal/channel"
	connpkg "github.com/beamhq/beam/internal/conn"
)

// DuplexTransport subscribes over a websocket. The server drives liveness
// with ping frames; gorilla answers them automatically, and the read
// deadline below catches a server that went silent.
type DuplexTransport struct {
	// ReadDeadline bounds the silence tolerated between inbound frames
	// (events, pings, anything). Default 45s, slightly above the server's
	// heartbeat interval plus its ping timeout.
	ReadDeadline time.Duration
}

func (t *DuplexTransport) Name() string { return "duplex" }

func (t *DuplexTransport) deadline() time.Duration {
	if t.ReadDeadline > 0 {
		return t.ReadDeadline
	}
	return 45 * time.Second
}

func (t *DuplexTransport) Subscribe(ctx context.Context, req SubscribeRequest, onEvent EventFunc) error {
	u, err := wsURL(req)
	if err != nil {
		return err
	}
	c, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("duplex dial: %w", err)
	}
	defer func() { _ = c.Close() }()

	// unblock the read loop on cancellation
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	resetDeadline := func() { _ = c.SetReadDeadline(time.Now().Add(t.deadline())) }
	resetDeadline()
	ping := c.PingHandler()
	c.SetPingHandler(func(data string) error {
		resetDeadline()
		return ping(data)
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
				return connpkg.ErrLivenessTimeout
			}
			return fmt.Errorf("duplex read: %w", err)
		}
		resetDeadline()

		var f struct {
			Type  string         `json:"type"`
			Event *channel.Event `json:"event"`
			Error string         `json:"error"`
		}
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Type {
		case "connected":
			if req.OnConnect != nil {
				req.OnConnect()
			}
		case "event":
			if f.Event == nil {
				continue
			}
			if err := onEvent(*f.Event); err != nil {
				return err
			}
		case "error":
			return fmt.Errorf("duplex server: %s", f.Error)
		}
	}
}

func wsURL(req SubscribeRequest) (string, error) {
	base, err := url.Parse(req.BaseURL)
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	base.Path = "/v1/ws"
	q := url.Values{}
	q.Set("channelKey", req.ChannelKey)
	if req.LastEventID != "" {
		q.Set("lastEventId", req.LastEventID)
	}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	if req.Token != "" {
		q.Set("token", req.Token)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}
