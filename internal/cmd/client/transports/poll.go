package transports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/beamhq/beam/internal/channel"
	"github.com/beamhq/beam/pkg/id"
)

// PollTransport is the floor tier: a stateless fetch loop. The server
// pages by producedAtMs; ID ordering lets the client drop anything at or
// before its delivery cursor, so re-reads across page boundaries never
// surface as duplicates.
type PollTransport struct {
	// Interval between fetches when a page comes back empty. Default 5s.
	Interval time.Duration

	// Limit per fetch. Zero lets the server apply its default.
	Limit int

	// Client overrides the HTTP client.
	Client *http.Client
}

func (t *PollTransport) Name() string { return "poll" }

func (t *PollTransport) interval() time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return 5 * time.Second
}

func (t *PollTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

func (t *PollTransport) Subscribe(ctx context.Context, req SubscribeRequest, onEvent EventFunc) error {
	cursor := req.LastEventID
	since := sinceFromCursor(cursor)

	connected := false
	for {
		page, err := t.fetch(ctx, req, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !connected {
			connected = true
			if req.OnConnect != nil {
				req.OnConnect()
			}
		}
		for _, ev := range page.Events {
			// the time-based page can overlap the cursor's millisecond
			if cursor != "" && ev.ID <= cursor {
				continue
			}
			if err := onEvent(ev); err != nil {
				return err
			}
			cursor = ev.ID
		}
		since = page.NextSinceMs
		if page.HasMore {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(t.interval()):
		}
	}
}

type pollPage struct {
	Events      []channel.Event `json:"events"`
	NextSinceMs int64           `json:"nextSince"`
	HasMore     bool            `json:"hasMore"`
}

func (t *PollTransport) fetch(ctx context.Context, req SubscribeRequest, since int64) (pollPage, error) {
	base, err := url.Parse(req.BaseURL)
	if err != nil {
		return pollPage{}, fmt.Errorf("base url: %w", err)
	}
	base.Path = "/v1/events/poll"
	q := url.Values{}
	q.Set("channelKey", req.ChannelKey)
	q.Set("since", strconv.FormatInt(since, 10))
	if t.Limit > 0 {
		q.Set("limit", strconv.Itoa(t.Limit))
	}
	base.RawQuery = q.Encode()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return pollPage{}, err
	}
	if req.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	resp, err := t.client().Do(hreq)
	if err != nil {
		return pollPage{}, fmt.Errorf("poll fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return pollPage{}, fmt.Errorf("poll fetch: %s", resp.Status)
	}
	var page pollPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return pollPage{}, fmt.Errorf("poll decode: %w", err)
	}
	return page, nil
}

// sinceFromCursor maps an event-ID cursor onto the time-based poll cursor,
// backing off one millisecond so same-millisecond successors are not
// skipped. The ID filter above handles the resulting overlap.
func sinceFromCursor(cursor string) int64 {
	if cursor == "" {
		return 0
	}
	eid, err := id.Parse(cursor)
	if err != nil {
		return 0
	}
	return eid.Millis() - 1
}
