// Package workerctx provides the shared abort flag and first-error capture
// that lets a session's pipeline stages cooperatively cancel each other.
package workerctx

import (
	"sync"
	"sync/atomic"
)

// Context is shared by every goroutine participating in one transfer
// session. Any stage that hits a fatal error calls HandleError, which flips
// the abort flag and records the error if none is recorded yet. Other
// stages poll ShouldAbort between blocking operations and exit promptly.
type Context struct {
	abort    atomic.Bool
	mu       sync.Mutex
	firstErr error
}

// New returns a fresh, non-aborted Context.
func New() *Context {
	return &Context{}
}

// ShouldAbort reports whether any worker has requested cancellation.
func (c *Context) ShouldAbort() bool {
	return c.abort.Load()
}

// HandleError flips the abort flag and records err as the session's
// first error if one has not already been recorded.
func (c *Context) HandleError(err error) {
	if err == nil {
		return
	}
	c.abort.Store(true)
	c.mu.Lock()
	if c.firstErr == nil {
		c.firstErr = err
	}
	c.mu.Unlock()
}

// Err returns the first error recorded by any worker, or nil if none was.
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstErr
}
