package wsserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/beamhq/beam/internal/runtime"
	deliverysvc "github.com/beamhq/beam/internal/services/delivery"
	logpkg "github.com/beamhq/beam/pkg/log"
)

// Handler upgrades HTTP requests to duplex websocket sessions.
type Handler struct {
	rt       *runtime.Runtime
	svc      *deliverysvc.Service
	logger   logpkg.Logger
	upgrader websocket.Upgrader
}

func NewHandler(rt *runtime.Runtime, logger logpkg.Logger) *Handler {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Handler{
		rt:     rt,
		svc:    deliverysvc.New(rt),
		logger: logger.WithComponent("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the REST surface is already wide open via CORS
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", logpkg.Err(err))
		return
	}
	q := r.URL.Query()
	s := newSession(h, conn, sessionParams{
		ChannelKey:  q.Get("channelKey"),
		LastEventID: q.Get("lastEventId"),
		Filter:      q.Get("filter"),
		Principal:   principal(r),
	})
	s.run(r.Context())
}

func principal(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// browsers cannot set headers on websocket dials
	return r.URL.Query().Get("token")
}
