package wsserver

import (
	"encoding/json"

	"github.com/beamhq/beam/internal/channel"
)

// Frame types on the duplex wire. Every message in either direction is one
// JSON frame.
const (
	frameConnected = "connected" // server → client, once, after upgrade
	frameEvent     = "event"     // server → client, one delivered event
	framePublished = "published" // server → client, publish ack with the id
	frameError     = "error"     // server → client, terminal or per-frame
	framePublish   = "publish"   // client → server
	frameSubscribe = "subscribe" // client → server, (re)narrow the stream
)

type frame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`

	// event delivery
	Event *channel.Event `json:"event,omitempty"`

	// publish
	ChannelKey string          `json:"channelKey,omitempty"`
	EventType  string          `json:"eventType,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ProducerID string          `json:"producerId,omitempty"`
	EventID    string          `json:"eventId,omitempty"`

	// subscribe
	LastEventID string `json:"lastEventId,omitempty"`
	Filter      string `json:"filter,omitempty"`

	Error string `json:"error,omitempty"`
}

func marshalFrame(f frame) []byte {
	b, _ := json.Marshal(f)
	return b
}
