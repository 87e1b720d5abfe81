// Package progress polls a pipeline stage's atomic chunk counter and
// reports transfer progress. It is an external collaborator to the core
// pipeline: nothing in the pipeline depends on it running.
package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/nimbusio/beam/internal/workerctx"
)

// Counter is satisfied by pipeline.Counter.
type Counter interface {
	Load() uint32
}

// Reporter periodically writes a percentage-complete line to an io.Writer
// until the counter reaches total or the session aborts.
type Reporter struct {
	Counter  Counter
	Total    uint32
	Interval time.Duration
	Out      io.Writer
}

// NewReporter builds a Reporter with a sensible default polling interval.
func NewReporter(counter Counter, total uint32, out io.Writer) *Reporter {
	return &Reporter{Counter: counter, Total: total, Interval: 200 * time.Millisecond, Out: out}
}

// Run blocks, printing progress, until the counter reaches Total or ctx
// signals abort.
func (r *Reporter) Run(ctx *workerctx.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		done := r.Counter.Load()
		if r.Out != nil {
			pct := 100.0
			if r.Total > 0 {
				pct = float64(done) / float64(r.Total) * 100.0
			}
			fmt.Fprintf(r.Out, "\r%d/%d chunks (%.1f%%)", done, r.Total, pct)
		}
		if done >= r.Total || ctx.ShouldAbort() {
			if r.Out != nil {
				fmt.Fprintln(r.Out)
			}
			return
		}
		<-ticker.C
	}
}
