package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConnLimiter_DisabledWhenNonPositive(t *testing.T) {
	for _, perSecond := range []int{0, -1, -100} {
		assert.Nil(t, NewConnLimiter(perSecond, 10))
	}
}

func TestNewConnLimiter_ClampsBurst(t *testing.T) {
	// A burst at or below perSecond would violate catrate's strict
	// monotonicity requirement and panic inside NewLimiter; this should
	// never reach that path.
	assert.NotNil(t, NewConnLimiter(5, 5))
	assert.NotNil(t, NewConnLimiter(5, 0))
}

func TestNewConnLimiter_AllowsWithinBudget(t *testing.T) {
	l := NewConnLimiter(2, 10)
	if !assert.NotNil(t, l) {
		return
	}

	allowed := 0

	for i := 0; i < 2; i++ {
		if _, ok := l.Allow("10.0.0.1"); ok {
			allowed++
		}
	}

	assert.Equal(t, 2, allowed, "expected both events within budget to be allowed")

	_, ok := l.Allow("10.0.0.1")
	assert.False(t, ok, "expected the third event within one second to be rejected")
}
