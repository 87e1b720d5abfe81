package ratelimit

import "sync"

// PeerLimiter rate-limits by remote address instead of globally, so one
// peer hammering a listener with bad handshakes or repeated declines
// cannot also throttle a different peer's first, legitimate attempt.
// Buckets are created lazily and kept for the process lifetime; a receiver
// process is short-lived (it exits after one completed transfer), so this
// never needs eviction.
type PeerLimiter struct {
	rate  float64
	burst int

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewPeerLimiter returns a PeerLimiter whose per-peer buckets each refill
// at rate tokens per second up to burst.
func NewPeerLimiter(rate float64, burst int) *PeerLimiter {
	return &PeerLimiter{rate: rate, burst: burst, buckets: make(map[string]*TokenBucket)}
}

func (p *PeerLimiter) bucketFor(peer string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[peer]
	if !ok {
		b = NewTokenBucket(p.rate, p.burst)
		p.buckets[peer] = b
	}
	return b
}

// Allow consumes n tokens from peer's bucket if available.
func (p *PeerLimiter) Allow(peer string, n int) bool {
	return p.bucketFor(peer).Allow(n)
}

// PeerCount reports how many distinct peers currently have a bucket,
// exposed for tests asserting buckets stay isolated per address.
func (p *PeerLimiter) PeerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}
