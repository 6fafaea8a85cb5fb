// Package server throttles per-connection message rates so a flooding
// client cannot monopolize the broadcast path.
package server

import (
	"math"
	"sync"
	"time"
)

// rateLimiter is a token bucket sized by RateLimitConfig: a connection may
// burst up to Burst messages, and spent tokens return continuously over the
// refill interval. Each Client owns one limiter.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	perSecond float64
	last      time.Time
}

// newRateLimiter builds a limiter from cfg. Burst and RefillInterval are
// normalized here as a floor; configuration loaded through sanitizeConfig is
// already within range.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	capacity := float64(cfg.Burst)
	if capacity < 1 {
		capacity = 1
	}

	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:    capacity,
		capacity:  capacity,
		perSecond: capacity / interval.Seconds(),
		last:      time.Now(),
	}
}

// allow reports whether the connection may relay another message now,
// spending one token when it does.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.last).Seconds(); elapsed > 0 {
		rl.tokens = math.Min(rl.tokens+elapsed*rl.perSecond, rl.capacity)
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}
