package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/nimbusio/beam/internal/workerctx"
)

func TestTokenBucketAllowSpendsAndBlocks(t *testing.T) {
	tb := NewTokenBucket(1, 2)
	if !tb.Allow(2) {
		t.Fatal("Allow(2) on a fresh bucket of burst 2 = false, want true")
	}
	if tb.Allow(1) {
		t.Fatal("Allow(1) right after spending the full burst = true, want false")
	}
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	tb := NewTokenBucket(100, 1)
	if !tb.Allow(1) {
		t.Fatal("Allow(1) on a fresh bucket = false, want true")
	}
	if tb.Allow(1) {
		t.Fatal("Allow(1) immediately after draining = true, want false")
	}
	time.Sleep(20 * time.Millisecond)
	if !tb.Allow(1) {
		t.Fatal("Allow(1) after refill window = false, want true")
	}
}

func TestTokenBucketWaitContextReturnsOnAbort(t *testing.T) {
	tb := NewTokenBucket(0, 0)
	ctx := workerctx.New()
	ctx.HandleError(errors.New("shutting down"))
	done := make(chan struct{})
	go func() {
		tb.WaitContext(ctx, 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("WaitContext did not return after the context aborted")
	}
}

func TestPeerLimiterIsolatesBuckets(t *testing.T) {
	pl := NewPeerLimiter(0, 1)
	if !pl.Allow("10.0.0.1:1234", 1) {
		t.Fatal("Allow for a fresh peer = false, want true")
	}
	if pl.Allow("10.0.0.1:1234", 1) {
		t.Fatal("second Allow for the same peer = true, want false (burst exhausted)")
	}
	if !pl.Allow("10.0.0.2:5555", 1) {
		t.Fatal("Allow for a different peer = false, want true; buckets must not be shared across peers")
	}
	if got := pl.PeerCount(); got != 2 {
		t.Fatalf("PeerCount() = %d, want 2", got)
	}
}
