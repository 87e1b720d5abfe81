package pipeline

import (
	"os"
	"path/filepath"

	"github.com/nimbusio/beam/internal/chunk"
	"github.com/nimbusio/beam/internal/queue"
	"github.com/nimbusio/beam/internal/transfer"
	"github.com/nimbusio/beam/internal/workerctx"
	"github.com/nimbusio/beam/internal/xerrors"
)

// Writer consumes plaintext chunks in arrival order and writes them into
// the files named by a transfer request, splitting and rejoining chunk
// boundaries against file boundaries as needed.
type Writer struct {
	ctx     *workerctx.Context
	baseDir string
	req     *transfer.Request
	in      *queue.Bounded[*chunk.Chunk]
	inDone  *AtomicFlag
	written *Counter

	carry []byte
}

func NewWriter(ctx *workerctx.Context, baseDir string, req *transfer.Request, in *queue.Bounded[*chunk.Chunk], inDone *AtomicFlag, written *Counter) *Writer {
	return &Writer{ctx: ctx, baseDir: baseDir, req: req, in: in, inDone: inDone, written: written}
}

// Run writes every file in request order, pulling plaintext bytes from
// chunks as they arrive. Its first pop is a short-poll loop rather than a
// blocking one, so an abort signaled before the reader produces anything
// cannot hang it.
func (w *Writer) Run() error {
	for _, f := range w.req.Files {
		if w.ctx.ShouldAbort() {
			return w.ctx.Err()
		}
		if err := w.writeFile(f); err != nil {
			w.ctx.HandleError(err)
			return err
		}
	}
	return nil
}

func (w *Writer) writeFile(f transfer.FileInfo) error {
	abs := filepath.Join(w.baseDir, filepath.FromSlash(f.RelativePath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return xerrors.NewIo(xerrors.OpenFailed, abs, err)
	}
	file, err := os.Create(abs)
	if err != nil {
		return xerrors.NewIo(xerrors.OpenFailed, abs, err)
	}
	defer file.Close()

	remaining := f.Size
	for remaining > 0 {
		if w.ctx.ShouldAbort() {
			return w.ctx.Err()
		}
		if len(w.carry) == 0 {
			c, err := w.next()
			if err != nil {
				return err
			}
			w.carry = c
		}
		n := uint64(len(w.carry))
		if remaining < n {
			n = remaining
		}
		if _, err := file.Write(w.carry[:n]); err != nil {
			return xerrors.NewIo(xerrors.WriteFailed, abs, err)
		}
		w.carry = w.carry[n:]
		if len(w.carry) == 0 {
			w.written.Inc()
		}
		remaining -= n
	}
	return nil
}

// next returns the payload of the next plaintext chunk, polling TryPop
// until one is available, the upstream is done and empty (a protocol
// error: the writer still expects bytes it will never receive), or abort is
// signaled.
func (w *Writer) next() ([]byte, error) {
	for {
		if w.ctx.ShouldAbort() {
			return nil, w.ctx.Err()
		}
		if c, ok := w.in.TryPop(); ok {
			return c.Payload(), nil
		}
		if w.inDone.IsSet() && w.in.Empty() {
			return nil, xerrors.NewProtocol("stream ended before all files were fully written")
		}
	}
}
