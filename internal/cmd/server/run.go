package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/beamhq/beam/internal/config"
	"github.com/beamhq/beam/internal/runtime"
	httpserver "github.com/beamhq/beam/internal/server/http"
	wsserver "github.com/beamhq/beam/internal/server/ws"
	logpkg "github.com/beamhq/beam/pkg/log"
)

// Options configure a server process.
type Options struct {
	HTTPAddr string
	Config   cfgpkg.Config
}

// Run starts the HTTP server (REST + SSE + websocket on one listener) and
// blocks until ctx is canceled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.HTTPAddr == "" {
		opts.HTTPAddr = opts.Config.Server.HTTPAddr
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = ":8080"
	}

	logger, err := buildLogger(opts.Config.Log)
	if err != nil {
		return err
	}

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: logger})
	if err != nil {
		return err
	}

	hsrv := httpserver.New(rt, logger)
	hsrv.Mount("/v1/ws", wsserver.NewHandler(rt, logger))
	defer hsrv.Close()

	logger.Info("starting beam server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("auth_mode", opts.Config.Auth.Mode),
		logpkg.Int("channel_buffer", opts.Config.Channel.MaxEventsPerChannel),
		logpkg.Dur("heartbeat_interval", opts.Config.Heartbeat.Interval()))

	return hsrv.ListenAndServe(sctx, opts.HTTPAddr)
}

func buildLogger(cfg cfgpkg.LogConfig) (logpkg.Logger, error) {
	level := cfg.Level
	if v := os.Getenv("BEAM_LOG_LEVEL"); v != "" {
		level = v
	}
	format := cfg.Format
	if v := os.Getenv("BEAM_LOG_FORMAT"); v != "" {
		format = v
	}
	parsed := logpkg.InfoLevel
	if level != "" {
		l, err := logpkg.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		parsed = l
	}
	f := logpkg.TextFormat
	if format == "json" {
		f = logpkg.JSONFormat
	}
	return logpkg.NewLogger(logpkg.WithLevel(parsed), logpkg.WithFormat(f)), nil
}
