package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamhq/beam/internal/channel"
	connpkg "github.com/beamhq/beam/internal/conn"
	deliverysvc "github.com/beamhq/beam/internal/services/delivery"
	logpkg "github.com/beamhq/beam/pkg/log"
)

const (
	// sendBuffer is the per-session outbound queue. A full queue means the
	// client is not draining; the session is closed rather than silently
	// dropping events.
	sendBuffer = 64

	writeWait = 10 * time.Second
)

var errSlowConsumer = errors.New("ws: slow consumer, send queue full")

type sessionParams struct {
	ChannelKey  string
	LastEventID string
	Filter      string
	Principal   string
}

// session owns one upgraded connection: a write pump draining the send
// queue, a read pump handling inbound publish/subscribe frames, a
// heartbeat monitor, and at most one live subscription at a time.
type session struct {
	id     string
	h      *Handler
	conn   *websocket.Conn
	logger logpkg.Logger

	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	principal  string
	initFilter string

	mu         sync.Mutex
	channelKey string
	cursor     string
	subCancel  context.CancelFunc
	subDone    chan struct{}
}

func newSession(h *Handler, conn *websocket.Conn, p sessionParams) *session {
	id := uuid.NewString()
	return &session{
		id:         id,
		h:          h,
		conn:       conn,
		logger:     h.logger.With(logpkg.Str("session", id)),
		send:       make(chan []byte, sendBuffer),
		principal:  p.Principal,
		initFilter: p.Filter,
		channelKey: p.ChannelKey,
		cursor:     p.LastEventID,
	}
}

// run drives the session until the connection drops, the heartbeat
// declares it dead, or a subscription fails. It blocks in the read pump.
func (s *session) run(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	defer s.close()

	s.enqueue(marshalFrame(frame{Type: frameConnected, SessionID: s.id}))
	go s.writePump()
	go s.heartbeat()

	s.mu.Lock()
	key, cursor := s.channelKey, s.cursor
	s.mu.Unlock()
	if key != "" {
		s.subscribe(key, cursor, s.initFilter)
	}

	s.readPump()
}

func (s *session) heartbeat() {
	cfg := s.h.rt.Config().Heartbeat
	hb := connpkg.NewHeartbeat(connpkg.HeartbeatConfig{
		Interval: cfg.Interval(),
		Timeout:  cfg.PingTimeout(),
	}, func() error {
		return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	})
	s.conn.SetPongHandler(func(string) error {
		hb.Pong()
		return nil
	})
	if err := hb.Run(s.ctx); err != nil {
		s.h.rt.Metrics().HeartbeatDeaths.WithLabelValues("duplex").Inc()
		s.fail(err)
	}
}

func (s *session) writePump() {
	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

func (s *session) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.enqueue(marshalFrame(frame{Type: frameError, Error: "malformed frame"}))
			continue
		}
		switch f.Type {
		case framePublish:
			s.handlePublish(f)
		case frameSubscribe:
			key := f.ChannelKey
			if key == "" {
				s.mu.Lock()
				key = s.channelKey
				s.mu.Unlock()
			}
			s.subscribe(key, f.LastEventID, f.Filter)
		default:
			s.enqueue(marshalFrame(frame{Type: frameError, Error: "unknown frame type: " + f.Type}))
		}
	}
}

func (s *session) handlePublish(f frame) {
	ev, err := s.h.svc.Publish(s.ctx, deliverysvc.PublishRequest{
		ChannelKey: f.ChannelKey,
		Type:       f.EventType,
		Payload:    f.Payload,
		ProducerID: f.ProducerID,
		Principal:  s.principal,
	})
	if err != nil {
		s.enqueue(marshalFrame(frame{Type: frameError, Error: err.Error()}))
		return
	}
	s.enqueue(marshalFrame(frame{Type: framePublished, EventID: ev.ID}))
}

// subscribe replaces the live subscription. The previous one is stopped
// first so two loops never interleave on the cursor; a blank lastEventID
// resumes from where the old subscription left off.
func (s *session) subscribe(key, lastID, filter string) {
	s.mu.Lock()
	if s.subCancel != nil {
		s.subCancel()
	}
	prevDone := s.subDone
	s.mu.Unlock()
	if prevDone != nil {
		<-prevDone
	}

	subCtx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.channelKey = key
	if lastID == "" {
		lastID = s.cursor
	}
	s.cursor = lastID
	s.subCancel = cancel
	s.subDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		err := s.h.svc.Subscribe(subCtx, deliverysvc.SubscribeRequest{
			ChannelKey:  key,
			LastEventID: lastID,
			Filter:      filter,
			Transport:   "duplex",
			Principal:   s.principal,
		}, wsSink{s: s, ctx: subCtx})
		if err != nil && subCtx.Err() == nil {
			s.enqueue(marshalFrame(frame{Type: frameError, Error: err.Error()}))
			s.fail(err)
		}
	}()
}

// enqueue queues one outbound frame without blocking. Overflow fails the
// session.
func (s *session) enqueue(b []byte) {
	select {
	case s.send <- b:
	default:
		s.fail(errSlowConsumer)
	}
}

func (s *session) fail(err error) {
	s.logger.Warn("session failed", logpkg.Err(err))
	s.close()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
}

// wsSink adapts the session's send queue to the delivery Sink interface.
type wsSink struct {
	s   *session
	ctx context.Context
}

func (w wsSink) Send(ev channel.Event) error {
	b := marshalFrame(frame{Type: frameEvent, Event: &ev})
	select {
	case w.s.send <- b:
	default:
		return errSlowConsumer
	}
	w.s.mu.Lock()
	w.s.cursor = ev.ID
	w.s.mu.Unlock()
	return nil
}

func (w wsSink) Context() context.Context { return w.ctx }
func (w wsSink) Flush() error             { return nil }
