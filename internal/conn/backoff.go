package conn

import "time"

// Backoff returns the reconnect delay for attempt k (1-based):
// min(base * 2^(k-1), max). With the reference base of 1s and cap of 30s
// that yields 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
func Backoff(pol Policy, attempt uint) time.Duration {
	base := pol.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := pol.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	if attempt == 0 {
		attempt = 1
	}
	// guard the shift; past 62 bits the delay is always capped
	if attempt-1 >= 63 {
		return max
	}
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}
