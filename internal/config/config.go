package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env. All delivery
// policy knobs are injected from here; components never read hardcoded
// policy.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Channel   ChannelConfig   `json:"channel" yaml:"channel"`
	Heartbeat HeartbeatConfig `json:"heartbeat" yaml:"heartbeat"`
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
	Poll      PollConfig      `json:"poll" yaml:"poll"`
	Guard     GuardConfig     `json:"guard" yaml:"guard"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// ServerConfig holds listener addresses.
type ServerConfig struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
}

// ChannelConfig bounds the per-channel event buffer.
type ChannelConfig struct {
	MaxEventsPerChannel int `json:"maxEventsPerChannel" yaml:"maxEventsPerChannel"`
}

// HeartbeatConfig drives the liveness protocol on duplex and streaming
// transports.
type HeartbeatConfig struct {
	IntervalMs    int `json:"intervalMs" yaml:"intervalMs"`
	PingTimeoutMs int `json:"pingTimeoutMs" yaml:"pingTimeoutMs"`
}

// Interval returns the heartbeat emission period.
func (h HeartbeatConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMs) * time.Millisecond
}

// PingTimeout returns how long a liveness signal may be outstanding.
func (h HeartbeatConfig) PingTimeout() time.Duration {
	return time.Duration(h.PingTimeoutMs) * time.Millisecond
}

// ReconnectConfig governs the client connection state machine.
type ReconnectConfig struct {
	BaseDelayMs int  `json:"baseDelayMs" yaml:"baseDelayMs"`
	MaxDelayMs  int  `json:"maxDelayMs" yaml:"maxDelayMs"`
	MaxAttempts uint `json:"maxAttempts" yaml:"maxAttempts"`
}

// BaseDelay returns the first-retry delay.
func (r ReconnectConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap.
func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// PollConfig tunes the polling transport.
type PollConfig struct {
	MaxLimit     int `json:"maxLimit" yaml:"maxLimit"`
	DefaultLimit int `json:"defaultLimit" yaml:"defaultLimit"`
	IntervalMs   int `json:"intervalMs" yaml:"intervalMs"`
}

// Interval returns the client poll period.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// GuardConfig tunes the resilience guard protecting outbound calls.
type GuardConfig struct {
	FailureThreshold uint32 `json:"failureThreshold" yaml:"failureThreshold"`
	ResetTimeoutMs   int    `json:"resetTimeoutMs" yaml:"resetTimeoutMs"`
	DedupMaxRequests int    `json:"dedupMaxRequests" yaml:"dedupMaxRequests"`
	DedupWindowMs    int    `json:"dedupWindowMs" yaml:"dedupWindowMs"`
	CacheTTLMs       int    `json:"cacheTtlMs" yaml:"cacheTtlMs"`
	CallTimeoutMs    int    `json:"callTimeoutMs" yaml:"callTimeoutMs"`
}

// ResetTimeout returns the open-circuit cooldown.
func (g GuardConfig) ResetTimeout() time.Duration {
	return time.Duration(g.ResetTimeoutMs) * time.Millisecond
}

// DedupWindow returns the rolling rate-limit window.
func (g GuardConfig) DedupWindow() time.Duration {
	return time.Duration(g.DedupWindowMs) * time.Millisecond
}

// CacheTTL returns the read-through cache entry lifetime.
func (g GuardConfig) CacheTTL() time.Duration {
	return time.Duration(g.CacheTTLMs) * time.Millisecond
}

// CallTimeout returns the per-call deadline applied inside the guard.
func (g GuardConfig) CallTimeout() time.Duration {
	return time.Duration(g.CallTimeoutMs) * time.Millisecond
}

// AuthConfig selects the authorization collaborator.
// Mode "allow-all" admits everything (development); mode "static" grants
// channel access per bearer token.
type AuthConfig struct {
	Mode   string                `json:"mode" yaml:"mode"`
	Tokens map[string]TokenGrant `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

// TokenGrant describes what a static token may do.
type TokenGrant struct {
	Principal string   `json:"principal" yaml:"principal"`
	Role      string   `json:"role" yaml:"role"`
	Channels  []string `json:"channels" yaml:"channels"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults matching the reference policy values.
func Default() Config {
	return Config{
		Server:    ServerConfig{HTTPAddr: ":8080"},
		Channel:   ChannelConfig{MaxEventsPerChannel: 100},
		Heartbeat: HeartbeatConfig{IntervalMs: 30000, PingTimeoutMs: 10000},
		Reconnect: ReconnectConfig{BaseDelayMs: 1000, MaxDelayMs: 30000, MaxAttempts: 5},
		Poll:      PollConfig{MaxLimit: 50, DefaultLimit: 20, IntervalMs: 5000},
		Guard: GuardConfig{
			FailureThreshold: 3,
			ResetTimeoutMs:   30000,
			DedupMaxRequests: 5,
			DedupWindowMs:    60000,
			CacheTTLMs:       300000,
			CallTimeoutMs:    30000,
		},
		Auth: AuthConfig{Mode: "allow-all"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). An empty
// path returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
