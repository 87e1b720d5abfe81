package pipeline

import "sync/atomic"

// AtomicFlag is a one-way, concurrency-safe completion flag a producer
// stage sets after pushing its last item so a downstream consumer can tell
// "no more is coming" apart from "nothing is here yet".
type AtomicFlag struct {
	v atomic.Bool
}

// Set marks the flag as done. Idempotent.
func (f *AtomicFlag) Set() { f.v.Store(true) }

// IsSet reports whether Set has been called.
func (f *AtomicFlag) IsSet() bool { return f.v.Load() }

// Counter is a concurrency-safe monotonic progress counter shared between a
// pipeline stage and an external progress reporter.
type Counter struct {
	v atomic.Uint32
}

// Inc increments the counter by one.
func (c *Counter) Inc() { c.v.Add(1) }

// Load returns the counter's current value.
func (c *Counter) Load() uint32 { return c.v.Load() }

