package posts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestUserLimiter(t *testing.T) {
	l := newUserLimiter(1, 2)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestUserLimiterDisabled(t *testing.T) {
	l := newUserLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
	assert.Empty(t, l.limiters)
}

func TestUserLimiterPrunesIdle(t *testing.T) {
	l := newUserLimiter(1, 1)
	for i := 0; i < maxIdleLimiters-1; i++ {
		l.limiters[fmt.Sprintf("idle-%d", i)] = rate.NewLimiter(l.limit, l.burst)
	}
	assert.True(t, l.Allow("busy"))
	assert.Len(t, l.limiters, maxIdleLimiters)

	assert.True(t, l.Allow("new"))
	assert.Len(t, l.limiters, 2)
	assert.Contains(t, l.limiters, "busy")
	assert.Contains(t, l.limiters, "new")
	assert.False(t, l.Allow("busy"))
}
