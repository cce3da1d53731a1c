// Package transports provides the pluggable delivery-tier implementations
// used by the CLI: duplex (websocket), stream (SSE), and poll (HTTP).
package transports

import (
	"context"

	"github.com/beamhq/beam/internal/channel"
)

// SubscribeRequest describes one subscription attempt on any tier.
type SubscribeRequest struct {
	// BaseURL is the server's HTTP base, e.g. http://127.0.0.1:8080.
	BaseURL string

	ChannelKey  string
	LastEventID string
	Filter      string
	Token       string

	// OnConnect, when set, is called once the session is established:
	// after the duplex/stream connected frame, or the poll tier's first
	// successful fetch.
	OnConnect func()
}

// EventFunc receives one delivered event. Returning an error ends the
// subscription.
type EventFunc func(channel.Event) error

// Transport is one delivery tier. Subscribe blocks until the connection
// ends; a nil return means ctx was canceled, any other error feeds the
// connection state machine.
type Transport interface {
	Name() string
	Subscribe(ctx context.Context, req SubscribeRequest, onEvent EventFunc) error
}
