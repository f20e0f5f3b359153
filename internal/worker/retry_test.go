package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentially(t *testing.T) {
	s := &RetryStrategy{
		MaxAttempts: 5,
		BaseBackoff: time.Second,
		MaxBackoff:  8 * time.Second,
	}

	assert.Equal(t, 1*time.Second, s.Backoff(1))
	assert.Equal(t, 2*time.Second, s.Backoff(2))
	assert.Equal(t, 4*time.Second, s.Backoff(3))
	assert.Equal(t, 8*time.Second, s.Backoff(4))
}

func TestBackoffCapped(t *testing.T) {
	s := &RetryStrategy{BaseBackoff: time.Second, MaxBackoff: 8 * time.Second}
	assert.Equal(t, 8*time.Second, s.Backoff(10))
}

func TestBackoffJitterBounds(t *testing.T) {
	s := NewRetryStrategy()
	for i := 0; i < 50; i++ {
		d := s.Backoff(2)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2*time.Second+500*time.Millisecond)
	}
}
