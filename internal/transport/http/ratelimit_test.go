package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)

	assert.True(t, rl.allow(now))
	assert.True(t, rl.allow(now.Add(time.Second)))
	assert.False(t, rl.allow(now.Add(2*time.Second)))

	assert.True(t, rl.allow(now.Add(time.Minute)), "new window resets the counter")
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0, time.Minute)
	assert.Nil(t, rl)
	for n := 0; n < 100; n++ {
		assert.True(t, rl.allow(time.Now()))
	}
}
