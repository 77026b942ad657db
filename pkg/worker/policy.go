package worker

import (
	"time"
)

const (
	// DefaultBackoffBase is the base of the exponential retry delay.
	DefaultBackoffBase = 2

	// maxBackoff caps the computed delay so a misconfigured base or a
	// large attempt count cannot overflow into a multi-day sleep.
	maxBackoff = time.Hour
)

// RetryPolicy computes the delay before a failed job re-enters the
// pending state: base^attempts seconds. After the first failure of a
// job with the default base the delay is 2s, then 4s, then 8s.
type RetryPolicy struct {
	base int
}

// NewRetryPolicy creates a policy with the given base. Bases below 2
// fall back to DefaultBackoffBase so the delay always grows.
func NewRetryPolicy(base int) RetryPolicy {
	if base < 2 {
		base = DefaultBackoffBase
	}
	return RetryPolicy{base: base}
}

// Base returns the configured exponential base.
func (p RetryPolicy) Base() int {
	return p.base
}

// Delay returns the backoff for a job that has failed `attempts` times.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts <= 0 {
		return time.Second
	}

	seconds := 1
	for i := 0; i < attempts; i++ {
		seconds *= p.base
		if time.Duration(seconds)*time.Second >= maxBackoff {
			return maxBackoff
		}
	}
	return time.Duration(seconds) * time.Second
}
