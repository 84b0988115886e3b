package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("c1"), "attempt %d", i)
	}
	assert.False(t, rl.Allow("c1"))
	// Other connections unaffected.
	assert.True(t, rl.Allow("c2"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("c1"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("c1"))
	}
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))
	rl.Forget("c1")
	assert.True(t, rl.Allow("c1"))
}
