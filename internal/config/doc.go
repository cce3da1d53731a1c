// Package config loads beam configuration from JSON/YAML files with a
// BEAM_* environment overlay. Defaults carry the reference policy values
// (buffer bound 100, heartbeat 30s/10s, backoff 1s..30s over 5 attempts,
// poll cap 50, breaker 3/30s, dedup 5 per 60s, cache TTL 5m).
package config
