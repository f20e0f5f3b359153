package worker

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy computes exponential backoff delays for transient
// processing failures.
type RetryStrategy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
}

// NewRetryStrategy returns the default strategy: 3 attempts, 1s base,
// 8s cap, jittered.
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  8 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the delay before the given attempt (1-based).
func (s *RetryStrategy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return s.withJitter(s.BaseBackoff)
	}
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * s.BaseBackoff
	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}
	return s.withJitter(backoff)
}

// withJitter spreads delays by up to 25% to avoid thundering retries.
func (s *RetryStrategy) withJitter(d time.Duration) time.Duration {
	if !s.Jitter {
		return d
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}
