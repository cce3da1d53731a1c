package deliverysvc

import (
	"context"
	"fmt"

	"github.com/beamhq/beam/internal/auth"
	"github.com/beamhq/beam/internal/channel"
	"github.com/beamhq/beam/internal/runtime"
	logpkg "github.com/beamhq/beam/pkg/log"
)

// replayBatch bounds how many events one read pulls before flushing.
const replayBatch = 64

// Service implements publish, cursor replay with live push, and stateless
// polling on top of the shared channel store. Transports bind it through
// the Sink interface; publishing and every subscription authorize through
// the runtime's guarded authorizer.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// New returns a Service using the runtime's logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, rt.Logger())
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Service{rt: rt, logger: logger.WithComponent("delivery")}
}

// Publish authorizes the producer, appends the event, and returns the
// stored event with its assigned ID.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (channel.Event, error) {
	if req.ChannelKey == "" {
		return channel.Event{}, channel.ErrEmptyChannel
	}
	if req.Type == "" {
		return channel.Event{}, channel.ErrEmptyType
	}
	if err := s.rt.Authorize(ctx, req.Principal, req.ChannelKey, auth.RoleEditor); err != nil {
		return channel.Event{}, fmt.Errorf("publish %s: %w", req.ChannelKey, err)
	}
	ev, err := s.rt.Store().Append(ctx, req.ChannelKey, req.Type, req.Payload, req.ProducerID)
	if err != nil {
		return channel.Event{}, err
	}
	s.rt.Metrics().EventsPublished.WithLabelValues(req.ChannelKey).Inc()
	s.logger.Debug("event published",
		logpkg.Str("channel", req.ChannelKey),
		logpkg.Str("type", req.Type),
		logpkg.Str("id", ev.ID))
	return ev, nil
}

// Subscribe replays everything past the request cursor, then pushes live
// events as they are appended, each in ID order with no duplicates. It
// returns when ctx or the sink's context ends, on a sink error, or after
// Limit events. The cursor here tracks the read position only; clients own
// their delivery cursor and advance it after handing a batch downstream.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest, sink Sink) error {
	if req.ChannelKey == "" {
		return channel.ErrEmptyChannel
	}
	if err := s.rt.Authorize(ctx, req.Principal, req.ChannelKey, auth.RoleViewer); err != nil {
		return fmt.Errorf("subscribe %s: %w", req.ChannelKey, err)
	}
	filter, err := channel.NewFilter(req.Filter)
	if err != nil {
		return fmt.Errorf("subscribe filter: %w", err)
	}

	transport := req.Transport
	if transport == "" {
		transport = "stream"
	}
	s.rt.Metrics().ActiveSessions.WithLabelValues(transport).Inc()
	defer s.rt.Metrics().ActiveSessions.WithLabelValues(transport).Dec()

	store := s.rt.Store()
	cursor := req.LastEventID
	delivered := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := sink.Context().Err(); err != nil {
			return nil
		}

		// capture the wake channel before reading; an append landing
		// between the read and the wait still closes it
		wake := store.Appended(req.ChannelKey)
		events, _ := store.ReadSinceID(req.ChannelKey, cursor, replayBatch)
		if len(events) == 0 {
			if err := sink.Flush(); err != nil {
				return err
			}
			select {
			case <-wake:
			case <-ctx.Done():
			case <-sink.Context().Done():
			}
			continue
		}

		for _, ev := range events {
			cursor = ev.ID
			if !filter.Match(ev) {
				continue
			}
			if err := sink.Send(ev); err != nil {
				return err
			}
			s.rt.Metrics().EventsDelivered.WithLabelValues(transport).Inc()
			delivered++
			if req.Limit > 0 && delivered >= req.Limit {
				return sink.Flush()
			}
		}
		if err := sink.Flush(); err != nil {
			return err
		}
	}
}

// Poll serves one stateless page. The limit is clamped server-side
// regardless of what the client asked for, but a page runs past the clamp
// rather than split events sharing a millisecond: NextSinceMs addresses
// whole milliseconds, so a split would strand the tail of the burst.
func (s *Service) Poll(ctx context.Context, req PollRequest) (PollResponse, error) {
	if req.ChannelKey == "" {
		return PollResponse{}, channel.ErrEmptyChannel
	}
	if err := s.rt.Authorize(ctx, req.Principal, req.ChannelKey, auth.RoleViewer); err != nil {
		return PollResponse{}, fmt.Errorf("poll %s: %w", req.ChannelKey, err)
	}

	cfg := s.rt.Config().Poll
	limit := req.Limit
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	if limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}

	events, hasMore := s.rt.Store().ReadSinceTime(req.ChannelKey, req.SinceMs, limit)
	next := req.SinceMs
	if len(events) > 0 {
		next = events[len(events)-1].ProducedAtMs
	}
	s.rt.Metrics().PollRequests.Inc()
	return PollResponse{Events: events, NextSinceMs: next, HasMore: hasMore}, nil
}
