package resilience

import (
	"time"
)

// FromMillis builds the default policy with the integer settings found in
// config files applied over it. Non-positive settings keep the default.
func FromMillis(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	return cfg.normalized()
}

// Budget is the total sleep across every retry of the policy before jitter,
// i.e. the longest a caller waits on backoff alone.
func (c RetryConfig) Budget() time.Duration {
	c = c.normalized()
	c.JitterFraction = 0
	var total time.Duration
	for attempt := 0; attempt < c.MaxAttempts-1; attempt++ {
		total += c.Delay(attempt, 0)
	}
	return total
}
