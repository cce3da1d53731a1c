// Package log provides structured logging for beam services.
//
// Loggers are constructed with functional options and passed explicitly via
// dependency injection; there is no package-level default. Fields are
// attached with the Field helpers:
//
//	logger := log.NewLogger(
//	    log.WithLevel(log.DebugLevel),
//	    log.WithFormat(log.JSONFormat),
//	)
//	logger = logger.WithComponent("delivery")
//	logger.Info("session opened", log.Str("channel", key), log.Int("replayed", n))
//
// Output is backed by log/slog handlers; the level can be adjusted at
// runtime with SetLevel.
package log
