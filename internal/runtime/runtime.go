package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/beamhq/beam/internal/auth"
	"github.com/beamhq/beam/internal/channel"
	cfgpkg "github.com/beamhq/beam/internal/config"
	"github.com/beamhq/beam/internal/guard"
	"github.com/beamhq/beam/internal/metrics"
	logpkg "github.com/beamhq/beam/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config     cfgpkg.Config
	Logger     logpkg.Logger
	Authorizer auth.Authorizer // nil selects from config
}

// Runtime wires the event store, resilience guard, authorizer, and metrics
// for a single delivery process. Services receive it by reference; nothing
// here is a package-level singleton.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	store   *channel.Store
	guard   *guard.Registry
	authz   auth.Authorizer
	metrics *metrics.Metrics
}

// Open builds a Runtime from options.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNop()
	}
	m := metrics.New()

	authz := opts.Authorizer
	if authz == nil {
		authz = auth.FromConfig(opts.Config.Auth)
	}

	g := guard.NewRegistry(guard.Options{
		Breaker: guard.BreakerConfig{
			FailureThreshold: opts.Config.Guard.FailureThreshold,
			ResetTimeout:     opts.Config.Guard.ResetTimeout(),
			OnStateChange: func(from, to guard.BreakerState) {
				if to == guard.StateOpen {
					m.BreakerTrips.Inc()
				}
			},
		},
		DedupMaxRequests: opts.Config.Guard.DedupMaxRequests,
		DedupWindow:      opts.Config.Guard.DedupWindow(),
		CacheTTL:         opts.Config.Guard.CacheTTL(),
		CallTimeout:      opts.Config.Guard.CallTimeout(),
	}, logger)

	return &Runtime{
		config:  opts.Config,
		logger:  logger,
		store:   channel.NewStore(opts.Config.Channel.MaxEventsPerChannel),
		guard:   g,
		authz:   authz,
		metrics: m,
	}, nil
}

// CheckHealth performs a simple liveness check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	return nil
}

// Authorize asks the external collaborator whether principal holds role on
// the channel, through the resilience guard: concurrent identical checks
// collapse, results are briefly cached, and a failing authorizer trips the
// "auth" circuit instead of hanging every request.
func (r *Runtime) Authorize(ctx context.Context, principal, channelKey string, role auth.Role) error {
	key := fmt.Sprintf("authz|%s|%s|%d", principal, channelKey, role)
	_, err := r.guard.Do(ctx, "auth", guard.CallOptions{Key: key, Cache: true}, func(ctx context.Context) (any, error) {
		return nil, r.authz.Authorize(ctx, principal, channelKey, role)
	})
	if errors.Is(err, guard.ErrRateLimited) {
		r.metrics.RateLimited.Inc()
	}
	return err
}

// Store returns the shared event channel store.
func (r *Runtime) Store() *channel.Store { return r.store }

// Guard returns the shared resilience guard registry.
func (r *Runtime) Guard() *guard.Registry { return r.guard }

// Metrics returns the delivery metrics.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
