// Package metrics exposes delivery counters on an injected Prometheus
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the delivery-layer collectors. Construct once in the
// runtime and pass by reference.
type Metrics struct {
	Registry *prometheus.Registry

	EventsPublished *prometheus.CounterVec
	EventsDelivered *prometheus.CounterVec
	ActiveSessions  *prometheus.GaugeVec
	BreakerTrips    prometheus.Counter
	RateLimited     prometheus.Counter
	PollRequests    prometheus.Counter
	HeartbeatDeaths *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_events_published_total",
			Help: "Events appended to channel buffers.",
		}, []string{"channel"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_events_delivered_total",
			Help: "Events handed to subscriber sinks.",
		}, []string{"transport"}),
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beam_active_sessions",
			Help: "Open subscriber sessions per transport.",
		}, []string{"transport"}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beam_breaker_trips_total",
			Help: "Circuit breaker transitions to open.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beam_rate_limited_total",
			Help: "Guarded calls rejected by the dedup window budget.",
		}),
		PollRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beam_poll_requests_total",
			Help: "Polling fetches served.",
		}),
		HeartbeatDeaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_heartbeat_deaths_total",
			Help: "Connections declared dead by the liveness protocol.",
		}, []string{"transport"}),
	}
	reg.MustRegister(
		m.EventsPublished,
		m.EventsDelivered,
		m.ActiveSessions,
		m.BreakerTrips,
		m.RateLimited,
		m.PollRequests,
		m.HeartbeatDeaths,
	)
	return m
}
