package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/beamhq/beam/pkg/id"
)

// DefaultMaxEvents bounds each channel's buffer when no override is given.
const DefaultMaxEvents = 100

// ErrEmptyChannel reports an append without a channel key.
var ErrEmptyChannel = errors.New("channel key required")

// ErrEmptyType reports an append without an event type.
var ErrEmptyType = errors.New("event type required")

// Store is the bounded, ordered, in-memory event buffer shared by all
// transports. Appends are linearizable per channel: one mutex per buffer,
// IDs assigned under it from a shared monotonic generator. The store never
// notifies subscribers of content; it only wakes blocked WaitForAppend
// callers, and transports read with cursors.
type Store struct {
	maxEvents int
	gen       *id.Generator

	mu      sync.RWMutex
	buffers map[string]*buffer
}

// buffer holds one channel's events oldest-first, trimmed at the head.
type buffer struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewStore creates a Store with the given per-channel bound.
// maxEvents <= 0 uses DefaultMaxEvents.
func NewStore(maxEvents int) *Store {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Store{maxEvents: maxEvents, gen: id.NewGenerator(), buffers: map[string]*buffer{}}
}

func (s *Store) buffer(key string) *buffer {
	s.mu.RLock()
	b := s.buffers[key]
	s.mu.RUnlock()
	if b != nil {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b = s.buffers[key]; b == nil {
		b = &buffer{notify: make(chan struct{})}
		s.buffers[key] = b
	}
	return b
}

// Append assigns the next ID for the channel, stores the event, and trims
// the buffer to the bound, evicting from the head. It returns the stored
// event. The context is accepted for signature symmetry with downstream
// stores; the in-memory append itself cannot block.
func (s *Store) Append(ctx context.Context, channelKey, eventType string, payload json.RawMessage, producerID string) (Event, error) {
	if channelKey == "" {
		return Event{}, ErrEmptyChannel
	}
	if eventType == "" {
		return Event{}, ErrEmptyType
	}
	b := s.buffer(channelKey)
	b.mu.Lock()
	defer b.mu.Unlock()

	eid := s.gen.Next()
	ev := Event{
		ID:           eid.String(),
		Channel:      channelKey,
		Type:         eventType,
		Payload:      payload,
		ProducedAtMs: eid.Millis(),
		ProducerID:   producerID,
	}
	b.events = append(b.events, ev)
	if n := len(b.events) - s.maxEvents; n > 0 {
		b.events = append(b.events[:0:0], b.events[n:]...)
	}

	// wake waiters
	close(b.notify)
	b.notify = make(chan struct{})
	return ev, nil
}

// ReadAll returns a copy of the channel's full buffer, oldest first.
func (s *Store) ReadAll(channelKey string) []Event {
	b := s.buffer(channelKey)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// ReadSinceID returns up to limit events with ID > lastEventID, oldest
// first, and whether more remain past the returned page. An empty
// lastEventID reads from the start of the buffer. limit <= 0 means no limit.
// The read has no side effects; an identical call with no intervening
// append returns the identical sequence.
func (s *Store) ReadSinceID(channelKey, lastEventID string, limit int) ([]Event, bool) {
	b := s.buffer(channelKey)
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if lastEventID != "" {
		// buffer is sorted by ID; find first event past the cursor
		start = len(b.events)
		for i, ev := range b.events {
			if ev.ID > lastEventID {
				start = i
				break
			}
		}
	}
	return page(b.events, start, limit)
}

// ReadSinceTime returns events produced strictly after sinceMs, oldest
// first, and whether more remain. sinceMs <= 0 reads from the start. The
// limit is soft: a page never ends mid-millisecond, because time cursors
// cannot address individual events within one, so the page extends through
// any events sharing the last returned timestamp.
func (s *Store) ReadSinceTime(channelKey string, sinceMs int64, limit int) ([]Event, bool) {
	b := s.buffer(channelKey)
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if sinceMs > 0 {
		start = len(b.events)
		for i, ev := range b.events {
			if ev.ProducedAtMs > sinceMs {
				start = i
				break
			}
		}
	}
	rest := b.events[start:]
	if limit > 0 && len(rest) > limit {
		end := limit
		for end < len(rest) && rest[end].ProducedAtMs == rest[end-1].ProducedAtMs {
			end++
		}
		if end < len(rest) {
			return append([]Event(nil), rest[:end]...), true
		}
	}
	return append([]Event(nil), rest...), false
}

func page(events []Event, start, limit int) ([]Event, bool) {
	rest := events[start:]
	if limit > 0 && len(rest) > limit {
		return append([]Event(nil), rest[:limit]...), true
	}
	return append([]Event(nil), rest...), false
}

// OldestID returns the first buffered event's ID, or "" when the channel is
// empty. A subscriber whose cursor sorts below this may have missed evicted
// events; the store does not raise an error for that case.
func (s *Store) OldestID(channelKey string) string {
	b := s.buffer(channelKey)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return ""
	}
	return b.events[0].ID
}

// Len returns the number of buffered events for the channel.
func (s *Store) Len(channelKey string) int {
	b := s.buffer(channelKey)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Appended returns a channel that is closed by the next append to the
// channel. Readers that block when a read comes back empty must capture
// this BEFORE the read: an append landing between the read and the wait
// closes the captured channel, so the wakeup cannot be lost.
func (s *Store) Appended(channelKey string) <-chan struct{} {
	b := s.buffer(channelKey)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notify
}

// WaitForAppend blocks until a new append lands on the channel, the timeout
// elapses, or ctx is done. It returns true only when woken by an append.
// The wait starts at the call; callers pairing a read with a wait should
// capture Appended before the read instead.
func (s *Store) WaitForAppend(ctx context.Context, channelKey string, timeout time.Duration) bool {
	ch := s.Appended(channelKey)

	if timeout <= 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}
