package guard

import (
	"context"
	"sync"
	"time"

	logpkg "github.com/beamhq/beam/pkg/log"
)

// Options tunes a Registry. Zero values fall back to the reference policy.
type Options struct {
	Breaker BreakerConfig

	// DedupMaxRequests is the number of underlying invocations a single
	// idempotency key may start per DedupWindow. Default 5.
	DedupMaxRequests int
	// DedupWindow is the rolling window for the budget above. Default 60s.
	DedupWindow time.Duration

	// CacheTTL is the read-through cache entry lifetime. Default 5m.
	CacheTTL time.Duration

	// CallTimeout caps every guarded call independently of the breaker's
	// timing. Default 30s.
	CallTimeout time.Duration

	// Clock is injected for tests. Nil uses time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DedupMaxRequests == 0 {
		o.DedupMaxRequests = 5
	}
	if o.DedupWindow == 0 {
		o.DedupWindow = 60 * time.Second
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// CallOptions shape one guarded call.
type CallOptions struct {
	// Key is the caller-chosen idempotency key (typically method+URL).
	// Empty disables dedup, rate limiting, and caching for the call.
	Key string

	// Cache enables read-through caching for the key. Reads only.
	Cache bool

	// Mutation bypasses the cache and invalidates the key on success.
	Mutation bool
}

// Registry holds per-dependency guard state: one breaker, one cache, and
// one dedup table per logical downstream. It is injected at construction,
// never reached through a package-level singleton, and different
// dependencies never contend on a shared lock during calls.
type Registry struct {
	opts   Options
	logger logpkg.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is the guard state for one dependency.
type entry struct {
	breaker *Breaker
	cache   *Cache

	mu       sync.Mutex
	inflight map[string]*call
	windows  map[string]*window
}

// call is a shared in-flight invocation (the DedupEntry future).
type call struct {
	done chan struct{}
	val  any
	err  error
}

// window is a rolling rate-limit window for one idempotency key.
type window struct {
	count   int
	resetAt time.Time
}

// NewRegistry creates a Registry.
func NewRegistry(opts Options, logger logpkg.Logger) *Registry {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Registry{
		opts:    opts.withDefaults(),
		logger:  logger.WithComponent("guard"),
		entries: map[string]*entry{},
	}
}

func (r *Registry) entry(dep string) *entry {
	r.mu.RLock()
	e := r.entries[dep]
	r.mu.RUnlock()
	if e != nil {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.entries[dep]; e == nil {
		cfg := r.opts.Breaker
		userHook := cfg.OnStateChange
		dep := dep
		cfg.OnStateChange = func(from, to BreakerState) {
			r.logger.Warn("breaker state change",
				logpkg.Str("dependency", dep),
				logpkg.Str("from", from.String()),
				logpkg.Str("to", to.String()))
			if userHook != nil {
				userHook(from, to)
			}
		}
		e = &entry{
			breaker:  NewBreaker(cfg, r.opts.Clock),
			cache:    NewCache(r.opts.CacheTTL, r.opts.Clock),
			inflight: map[string]*call{},
			windows:  map[string]*window{},
		}
		r.entries[dep] = e
	}
	return e
}

// BreakerState reports the circuit state of a dependency ("closed" when the
// dependency has never been called).
func (r *Registry) BreakerState(dep string) BreakerState {
	return r.entry(dep).breaker.State()
}

// Do runs op guarded for the named dependency: concurrent calls with the
// same idempotency key collapse onto one invocation, repeats above the
// window budget are rejected with ErrRateLimited, cacheable reads are served
// from the short-TTL cache, and the actual invocation runs under the
// dependency's circuit breaker with a hard per-call timeout. The caller
// always observes the wrapped result, ErrCircuitOpen, ErrRateLimited, or a
// context deadline.
func (r *Registry) Do(ctx context.Context, dep string, opts CallOptions, op func(context.Context) (any, error)) (any, error) {
	e := r.entry(dep)

	if opts.Key == "" {
		return r.invoke(ctx, e, opts, op)
	}

	e.mu.Lock()
	// join an identical in-flight call
	if c, ok := e.inflight[opts.Key]; ok {
		e.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// read-through cache
	if opts.Cache && !opts.Mutation {
		if v, ok := e.cache.Get(opts.Key); ok {
			e.mu.Unlock()
			return v, nil
		}
	}

	// rolling window budget per key; only actual invocation starts count
	now := r.opts.Clock()
	w := e.windows[opts.Key]
	if w == nil || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(r.opts.DedupWindow)}
		e.windows[opts.Key] = w
	}
	if w.count >= r.opts.DedupMaxRequests {
		e.mu.Unlock()
		return nil, ErrRateLimited
	}
	w.count++

	c := &call{done: make(chan struct{})}
	e.inflight[opts.Key] = c
	e.mu.Unlock()

	v, err := r.invoke(ctx, e, opts, op)

	e.mu.Lock()
	if err == nil {
		if opts.Mutation {
			e.cache.Invalidate(opts.Key)
		} else if opts.Cache {
			e.cache.Set(opts.Key, v)
		}
	}
	delete(e.inflight, opts.Key)
	e.mu.Unlock()

	c.val, c.err = v, err
	close(c.done)
	return v, err
}

func (r *Registry) invoke(ctx context.Context, e *entry, opts CallOptions, op func(context.Context) (any, error)) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return e.breaker.Execute(cctx, op)
}
