package gate

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-remote-address token bucket guarding the
// unauthenticated login/refresh/password-reset family. Scoped to IP
// rather than username, the safer default when credentials themselves
// may be the thing under attack. Buckets are held for the process
// lifetime; a deployment with many distinct IPs would want an eviction
// policy, but a single-replica deployment does not need one yet.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	capacity int
	refill   rate.Limit
}

// NewRateLimiter builds a limiter with the given bucket capacity and
// refill rate expressed as tokens per minute.
func NewRateLimiter(capacity, refillPerMinute int) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*rate.Limiter),
		capacity: capacity,
		refill:   rate.Limit(float64(refillPerMinute) / 60.0),
	}
}

func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = rate.NewLimiter(r.refill, r.capacity)
		r.buckets[key] = b
	}
	r.mu.Unlock()
	return b.Allow()
}
