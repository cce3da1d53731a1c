package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beamhq/beam/internal/auth"
	"github.com/beamhq/beam/internal/channel"
	"github.com/beamhq/beam/internal/guard"
	"github.com/beamhq/beam/internal/runtime"
	deliverysvc "github.com/beamhq/beam/internal/services/delivery"
	logpkg "github.com/beamhq/beam/pkg/log"
)

// Server is the REST and SSE gateway. It binds the delivery service to
// JSON endpoints plus a text/event-stream subscribe surface.
type Server struct {
	rt     *runtime.Runtime
	svc    *deliverysvc.Service
	logger logpkg.Logger
	mux    *http.ServeMux
	srv    *http.Server
	lis    net.Listener
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		svc:    deliverysvc.New(rt),
		logger: logger.WithComponent("http"),
		mux:    mux,
		srv:    &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/events", s.handlePublish)
	mux.HandleFunc("/v1/events/stream", s.handleSubscribeSSE)
	mux.HandleFunc("/v1/events/poll", s.handlePoll)
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Metrics().Registry, promhttp.HandlerOpts{}))
	return s
}

// Mount attaches an extra handler, used to hang the websocket endpoint
// on the same listener.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal extracts the bearer token; static-token auth resolves it to
// a grant, allow-all ignores it.
func principal(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

type publishReq struct {
	ChannelKey string          `json:"channelKey"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ProducerID string          `json:"producerId"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ev, err := s.svc.Publish(r.Context(), deliverysvc.PublishRequest{
		ChannelKey: req.ChannelKey,
		Type:       req.Type,
		Payload:    req.Payload,
		ProducerID: req.ProducerID,
		Principal:  principal(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"eventId": ev.ID, "producedAtMs": ev.ProducedAtMs})
}

func (s *Server) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	key := r.URL.Query().Get("channelKey")
	lastID := r.URL.Query().Get("lastEventId")
	if lastID == "" {
		lastID = r.Header.Get("Last-Event-ID")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sink := newSSESink(w, r)
	if err := sink.Connected(); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.heartbeatLoop(ctx, cancel, sink)

	err := s.svc.Subscribe(ctx, deliverysvc.SubscribeRequest{
		ChannelKey:  key,
		LastEventID: lastID,
		Filter:      r.URL.Query().Get("filter"),
		Transport:   "stream",
		Principal:   principal(r),
	}, sink)
	if err != nil {
		// headers are gone already; surface the reason in-band
		_ = sink.Error(err)
	}
}

// heartbeatLoop writes SSE comments so intermediaries keep the stream
// open. A write failure means the client is gone.
func (s *Server) heartbeatLoop(ctx context.Context, cancel context.CancelFunc, sink *sseSink) {
	interval := s.rt.Config().Heartbeat.Interval()
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := sink.Comment("hb"); err != nil {
				s.rt.Metrics().HeartbeatDeaths.WithLabelValues("stream").Inc()
				cancel()
				return
			}
		}
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	resp, err := s.svc.Poll(r.Context(), deliverysvc.PollRequest{
		ChannelKey: q.Get("channelKey"),
		SinceMs:    parseTimestamp(q.Get("since")),
		Limit:      parseLimit(q.Get("limit")),
		Principal:  principal(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError maps delivery errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, channel.ErrEmptyChannel), errors.Is(err, channel.ErrEmptyType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDenied):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, guard.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, guard.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// parseLimit returns 0 for empty or invalid values; the service applies
// its own default and cap.
func parseLimit(s string) int {
	if s == "" {
		return 0
	}
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return 0
}

// parseTimestamp accepts raw unix milliseconds or RFC3339.
func parseTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli()
	}
	return 0
}
