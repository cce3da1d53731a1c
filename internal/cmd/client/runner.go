package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beamhq/beam/internal/channel"
	transports "github.com/beamhq/beam/internal/cmd/client/transports"
	connpkg "github.com/beamhq/beam/internal/conn"
	logpkg "github.com/beamhq/beam/pkg/log"
)

// RunnerOptions configure a tiered subscription.
type RunnerOptions struct {
	BaseURL     string
	ChannelKey  string
	LastEventID string
	Filter      string
	Token       string

	// Policy governs retries and demotion. Zero values use the server
	// defaults (1s base, 30s cap, 5 attempts per tier, demote on).
	Policy connpkg.Policy

	// Start is the initial tier. Zero value starts on duplex.
	Start connpkg.Transport

	// Transports overrides tier implementations, used by tests. Nil uses
	// the real duplex/stream/poll stack.
	Transports map[connpkg.Transport]transports.Transport

	Logger  logpkg.Logger
	OnEvent transports.EventFunc
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.Policy.BaseDelay == 0 {
		o.Policy.BaseDelay = time.Second
	}
	if o.Policy.MaxDelay == 0 {
		o.Policy.MaxDelay = 30 * time.Second
	}
	if o.Policy.MaxAttempts == 0 {
		o.Policy.MaxAttempts = 5
		o.Policy.Demote = true
	}
	if o.Policy.PollRetryDelay == 0 {
		o.Policy.PollRetryDelay = 5 * time.Second
	}
	if o.Start == connpkg.TransportNone {
		o.Start = connpkg.TransportDuplex
	}
	if o.Transports == nil {
		o.Transports = map[connpkg.Transport]transports.Transport{
			connpkg.TransportDuplex: &transports.DuplexTransport{},
			connpkg.TransportStream: &transports.StreamTransport{},
			connpkg.TransportPoll:   &transports.PollTransport{},
		}
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNop()
	}
	return o
}

// Runner drives the connection state machine over the real transports:
// dial, deliver, and on failure back off, retry, and demote tier by tier
// down to the polling floor. The delivery cursor survives every reconnect
// and demotion, so a consumer sees each event once, in order.
type Runner struct {
	opts   RunnerOptions
	logger logpkg.Logger
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	opts = opts.withDefaults()
	return &Runner{opts: opts, logger: opts.Logger.WithComponent("runner")}
}

// Run subscribes and blocks until ctx ends, the consumer callback returns
// an error, or the no-demote policy exhausts its budget.
func (r *Runner) Run(ctx context.Context) error {
	pol := r.opts.Policy
	st := connpkg.New(r.opts.Start)
	st.Cursor = r.opts.LastEventID
	actions := []connpkg.Action{connpkg.Dial{Transport: st.Transport}}

	var cbErr error
	for {
		if ctx.Err() != nil {
			return nil
		}
		if len(actions) == 0 {
			return nil
		}
		var next []connpkg.Action
		for _, a := range actions {
			switch a := a.(type) {
			case connpkg.Sleep:
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(a.Delay):
				}

			case connpkg.Demoted:
				r.logger.Warn("tier demoted",
					logpkg.Str("from", a.From.String()),
					logpkg.Str("to", a.To.String()),
					logpkg.Str("cursor", st.Cursor))

			case connpkg.Degraded:
				r.logger.Warn("delivery degraded, retrying on poll",
					logpkg.Str("cursor", st.Cursor))

			case connpkg.Stop:
				if st.Status == connpkg.StatusFailed {
					return fmt.Errorf("connection failed on %s: %w",
						st.Transport, connpkg.ErrTransportClosed)
				}
				return nil

			case connpkg.Dial:
				tr := r.opts.Transports[a.Transport]
				if tr == nil {
					return fmt.Errorf("no transport for tier %s", a.Transport)
				}
				req := transports.SubscribeRequest{
					BaseURL:     r.opts.BaseURL,
					ChannelKey:  r.opts.ChannelKey,
					LastEventID: st.Cursor,
					Filter:      r.opts.Filter,
					Token:       r.opts.Token,
					OnConnect: func() {
						st, _ = connpkg.Step(st, connpkg.DialSucceeded{Cursor: st.Cursor}, pol, time.Now())
						r.logger.Info("connected",
							logpkg.Str("transport", tr.Name()),
							logpkg.Str("cursor", st.Cursor))
					},
				}
				err := tr.Subscribe(ctx, req, func(ev channel.Event) error {
					if err := r.opts.OnEvent(ev); err != nil {
						cbErr = err
						return err
					}
					st, _ = connpkg.Step(st, connpkg.BatchDelivered{Cursor: ev.ID}, pol, time.Now())
					return nil
				})
				if ctx.Err() != nil {
					return nil
				}
				if cbErr != nil {
					return cbErr
				}
				if err == nil {
					err = connpkg.ErrTransportClosed
				}
				r.logger.Debug("transport ended",
					logpkg.Str("transport", tr.Name()),
					logpkg.Err(err))
				var in connpkg.Input = connpkg.TransportError{Err: err}
				if errors.Is(err, connpkg.ErrLivenessTimeout) {
					in = connpkg.LivenessTimeout{}
				}
				var more []connpkg.Action
				st, more = connpkg.Step(st, in, pol, time.Now())
				next = append(next, more...)
			}
		}
		actions = next
	}
}
