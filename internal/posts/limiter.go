package posts

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxIdleLimiters bounds how many per-user limiters are kept before full
// (idle) ones are dropped.
const maxIdleLimiters = 4096

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perMinute, burst int) *userLimiter {
	l := rate.Inf
	if perMinute > 0 {
		l = rate.Limit(float64(perMinute) / 60)
	}
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{limit: l, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether userID may act now and consumes a token if so.
func (u *userLimiter) Allow(userID string) bool {
	if u.limit == rate.Inf {
		return true
	}
	u.mu.Lock()
	lim, ok := u.limiters[userID]
	if !ok {
		if len(u.limiters) >= maxIdleLimiters {
			u.pruneLocked()
		}
		lim = rate.NewLimiter(u.limit, u.burst)
		u.limiters[userID] = lim
	}
	u.mu.Unlock()
	return lim.Allow()
}

// pruneLocked drops limiters whose bucket has refilled, since a fresh
// limiter would behave the same.
func (u *userLimiter) pruneLocked() {
	for id, lim := range u.limiters {
		if lim.Tokens() >= float64(u.burst) {
			delete(u.limiters, id)
		}
	}
}
