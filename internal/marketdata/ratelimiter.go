package marketdata

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a single-bucket, outbound-call token bucket, grounded on
// and generalized from libs/middleware/ratelimit.go's per-client bucket
// (which tracks inbound requests per IP): here there is exactly one client,
// the feed's own outbound provider calls, refilled continuously rather than
// reset on minute/hour boundaries.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
	now        func() time.Time
}

// NewRateLimiter builds a limiter that allows requestsPerMinute steady-state,
// bursting up to the full capacity (equal to requestsPerMinute).
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	capacity := float64(requestsPerMinute)
	return &RateLimiter{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: capacity / 60.0,
		last:       time.Now(),
		now:        time.Now,
	}
}

func (rl *RateLimiter) refillLocked() {
	now := rl.now()
	elapsed := now.Sub(rl.last).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.last = now
}

// Allow reports whether a call may proceed right now, consuming one token
// if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}
		rl.mu.Lock()
		deficit := 1 - rl.tokens
		wait := time.Duration(deficit/rl.refillRate*1000) * time.Millisecond
		rl.mu.Unlock()
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
