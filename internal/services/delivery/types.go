package deliverysvc

import (
	"context"
	"encoding/json"

	"github.com/beamhq/beam/internal/channel"
)

// PublishRequest describes one producer append.
type PublishRequest struct {
	ChannelKey string          `json:"channelKey"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ProducerID string          `json:"producerId,omitempty"`

	// Principal identifies the caller to the authorization collaborator.
	Principal string `json:"-"`
}

// SubscribeRequest describes a streaming or duplex subscription.
type SubscribeRequest struct {
	ChannelKey string
	// LastEventID resumes past a known cursor; empty replays the full
	// buffer.
	LastEventID string
	// Filter is an optional CEL expression narrowing delivery.
	Filter string
	// Limit stops delivery after N events; 0 streams indefinitely.
	Limit int
	// Transport labels metrics ("stream", "duplex").
	Transport string
	Principal string
}

// PollRequest describes one stateless incremental fetch. All cursor state
// lives with the caller.
type PollRequest struct {
	ChannelKey string
	// SinceMs returns only events produced strictly after this timestamp;
	// 0 reads from the start of the buffer.
	SinceMs   int64
	Limit     int
	Principal string
}

// PollResponse is the poll page plus the resume cursor.
type PollResponse struct {
	Events []channel.Event `json:"events"`
	// NextSinceMs is the ProducedAt of the last returned event, or the
	// request's since unchanged when nothing matched, so the caller can
	// always resume without gaps or re-fetching the same page.
	NextSinceMs int64 `json:"nextSince"`
	HasMore     bool  `json:"hasMore"`
}

// Sink is implemented by transports to receive streamed events.
type Sink interface {
	Send(channel.Event) error
	Context() context.Context
	Flush() error
}
