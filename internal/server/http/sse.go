package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/beamhq/beam/internal/channel"
)

// sseSink implements the delivery Sink interface over Server-Sent Events.
// Writes are serialized because the heartbeat loop shares the response
// writer with the subscribe loop.
type sseSink struct {
	mu sync.Mutex
	w  http.ResponseWriter
	r  *http.Request
}

func newSSESink(w http.ResponseWriter, r *http.Request) *sseSink {
	return &sseSink{w: w, r: r}
}

// Connected writes the synthetic hello frame carrying the session id, so
// clients can confirm the stream is live before any event arrives.
func (s *sseSink) Connected() error {
	b, _ := json.Marshal(map[string]string{"sessionId": uuid.NewString()})
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: connected\ndata: %s\n\n", b); err != nil {
		return err
	}
	s.flushLocked()
	return nil
}

func (s *sseSink) Send(ev channel.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// the id field lets EventSource clients resume via Last-Event-ID
	if _, err := fmt.Fprintf(s.w, "id: %s\ndata: %s\n\n", ev.ID, b); err != nil {
		return err
	}
	return nil
}

func (s *sseSink) Context() context.Context { return s.r.Context() }

func (s *sseSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	return nil
}

// Comment writes an SSE comment line, used as a liveness signal.
func (s *sseSink) Comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flushLocked()
	return nil
}

// Error surfaces a terminal error in-band after headers are committed.
func (s *sseSink) Error(err error) error {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, werr := fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", b); werr != nil {
		return werr
	}
	s.flushLocked()
	return nil
}

func (s *sseSink) flushLocked() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
