package httpapi

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// rateLimiter is a fixed-window counter per client key. A zero limit disables it.
type rateLimiter struct {
	limit  int
	window time.Duration
	hits   *gocache.Cache
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		hits:   gocache.New(window, 2*window),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	// Add only succeeds for the first hit of a window; it fixes the expiry.
	if err := r.hits.Add(key, 1, r.window); err == nil {
		return true
	}
	n, err := r.hits.IncrementInt(key, 1)
	if err != nil {
		// window expired between Add and IncrementInt
		r.hits.Set(key, 1, r.window)
		return true
	}
	return n <= r.limit
}
