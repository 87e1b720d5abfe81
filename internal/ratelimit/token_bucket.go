// Package ratelimit throttles how fast a receiver re-listens after a failed
// handshake or a declined offer, so a peer that keeps reconnecting with the
// wrong password cannot spin the accept loop.
package ratelimit

import (
	"sync"
	"time"

	"github.com/nimbusio/beam/internal/workerctx"
)

// TokenBucket is a classic token-bucket rate limiter: tokens refill
// continuously at rate per second up to burst, and Allow/Wait spend them.
type TokenBucket struct {
	rate       float64 // tokens per second
	burst      int     // max tokens
	available  float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket returns a bucket starting full, refilling at rate tokens
// per second up to a maximum of burst.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	return &TokenBucket{rate: rate, burst: burst, available: float64(burst), lastRefill: time.Now()}
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.available += elapsed * tb.rate
	if tb.available > float64(tb.burst) {
		tb.available = float64(tb.burst)
	}
	tb.lastRefill = now
}

// Allow consumes n tokens if available and returns true, otherwise false.
func (tb *TokenBucket) Allow(n int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(time.Now())
	if tb.available >= float64(n) {
		tb.available -= float64(n)
		return true
	}
	return false
}

// Wait blocks until n tokens are available.
func (tb *TokenBucket) Wait(n int) {
	for {
		if tb.Allow(n) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// WaitContext is like Wait but returns early if ctx aborts, so a receiver
// shutting down doesn't block on a throttle it no longer needs to honor.
func (tb *TokenBucket) WaitContext(ctx *workerctx.Context, n int) {
	for {
		if tb.Allow(n) || ctx.ShouldAbort() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
