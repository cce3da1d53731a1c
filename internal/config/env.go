package config

import (
	"os"
	"strconv"
)

// FromEnv overlays BEAM_* environment variables onto cfg. Environment wins
// over file values; unset variables leave the config untouched.
func FromEnv(cfg *Config) {
	setString(&cfg.Server.HTTPAddr, "BEAM_HTTP_ADDR")
	setInt(&cfg.Channel.MaxEventsPerChannel, "BEAM_MAX_EVENTS_PER_CHANNEL")
	setInt(&cfg.Heartbeat.IntervalMs, "BEAM_HEARTBEAT_INTERVAL_MS")
	setInt(&cfg.Heartbeat.PingTimeoutMs, "BEAM_PING_TIMEOUT_MS")
	setInt(&cfg.Reconnect.BaseDelayMs, "BEAM_RECONNECT_BASE_MS")
	setInt(&cfg.Reconnect.MaxDelayMs, "BEAM_RECONNECT_MAX_DELAY_MS")
	setUint(&cfg.Reconnect.MaxAttempts, "BEAM_RECONNECT_MAX_ATTEMPTS")
	setInt(&cfg.Poll.MaxLimit, "BEAM_POLL_MAX_LIMIT")
	setInt(&cfg.Poll.DefaultLimit, "BEAM_POLL_DEFAULT_LIMIT")
	setInt(&cfg.Poll.IntervalMs, "BEAM_POLL_INTERVAL_MS")
	setUint32(&cfg.Guard.FailureThreshold, "BEAM_BREAKER_FAILURE_THRESHOLD")
	setInt(&cfg.Guard.ResetTimeoutMs, "BEAM_BREAKER_RESET_TIMEOUT_MS")
	setInt(&cfg.Guard.DedupMaxRequests, "BEAM_DEDUP_MAX_REQUESTS")
	setInt(&cfg.Guard.DedupWindowMs, "BEAM_DEDUP_WINDOW_MS")
	setInt(&cfg.Guard.CacheTTLMs, "BEAM_CACHE_TTL_MS")
	setInt(&cfg.Guard.CallTimeoutMs, "BEAM_CALL_TIMEOUT_MS")
	setString(&cfg.Auth.Mode, "BEAM_AUTH_MODE")
	setString(&cfg.Log.Level, "BEAM_LOG_LEVEL")
	setString(&cfg.Log.Format, "BEAM_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint(dst *uint, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint(n)
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}
