// Package pipeline implements the four concurrent stages that move bytes
// from disk, through the streaming cipher, onto the wire, and back: the
// file reader, the encrypt/decrypt stages, the chunk framer, and the file
// writer. Each stage runs on its own goroutine and communicates with its
// neighbors through a bounded queue.
package pipeline

import (
	"io"
	"os"
	"path/filepath"

	"github.com/nimbusio/beam/internal/chunk"
	"github.com/nimbusio/beam/internal/queue"
	"github.com/nimbusio/beam/internal/transfer"
	"github.com/nimbusio/beam/internal/workerctx"
	"github.com/nimbusio/beam/internal/xerrors"
)

// Reader treats the concatenation of a transfer request's files as one byte
// stream and repacks it into fixed-size plaintext chunks.
type Reader struct {
	ctx     *workerctx.Context
	baseDir string
	req     *transfer.Request
	out     *queue.Bounded[*chunk.Chunk]
	done    *AtomicFlag

	seq     uint64
	pending []byte
}

// NewReader constructs a Reader that emits chunks 1..req.NumChunks into out
// and sets done once the last chunk has been pushed.
func NewReader(ctx *workerctx.Context, baseDir string, req *transfer.Request, out *queue.Bounded[*chunk.Chunk], done *AtomicFlag) *Reader {
	return &Reader{ctx: ctx, baseDir: baseDir, req: req, out: out, done: done, seq: 1}
}

// Run reads every file in request order, splits the combined stream into
// ChunkSize chunks, and pushes them to out in sequence. It returns the first
// error encountered, having already reported it to ctx.
func (r *Reader) Run() error {
	defer r.done.Set()

	for _, f := range r.req.Files {
		if r.ctx.ShouldAbort() {
			err := r.ctx.Err()
			return err
		}
		if err := r.readFile(f); err != nil {
			r.ctx.HandleError(err)
			return err
		}
	}

	for len(r.pending) > 0 {
		if r.ctx.ShouldAbort() {
			return r.ctx.Err()
		}
		r.flush(r.seq == uint64(r.req.NumChunks))
	}
	return nil
}

// flush emits one chunk of r.req.ChunkSize bytes from the front of pending,
// or FinalChunkSize bytes if isLast and a final partial chunk is expected.
func (r *Reader) flush(isLast bool) {
	size := int(r.req.ChunkSize)
	if isLast && r.req.FinalChunkSize != 0 {
		size = int(r.req.FinalChunkSize)
	}
	payload := make([]byte, size)
	copy(payload, r.pending[:size])
	r.out.Push(chunk.NewPlain(r.seq, payload))
	r.seq++
	r.pending = r.pending[size:]
}

func (r *Reader) readFile(f transfer.FileInfo) error {
	abs := filepath.Join(r.baseDir, filepath.FromSlash(f.RelativePath))
	file, err := os.Open(abs)
	if err != nil {
		return xerrors.NewIo(xerrors.OpenFailed, abs, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return xerrors.NewIo(xerrors.OpenFailed, abs, err)
	}
	if uint64(info.Size()) != f.Size {
		return xerrors.NewIo(xerrors.SizeMismatch, abs, nil)
	}

	buf := make([]byte, 64*1024)
	remaining := f.Size
	for remaining > 0 {
		if r.ctx.ShouldAbort() {
			return r.ctx.Err()
		}
		toRead := uint64(len(buf))
		if remaining < toRead {
			toRead = remaining
		}
		n, err := io.ReadFull(file, buf[:toRead])
		if err != nil {
			return xerrors.NewIo(xerrors.ShortRead, abs, err)
		}
		remaining -= uint64(n)
		r.pending = append(r.pending, buf[:n]...)
		for uint64(len(r.pending)) >= uint64(r.req.ChunkSize) {
			if r.ctx.ShouldAbort() {
				return r.ctx.Err()
			}
			r.flush(false)
		}
	}
	return nil
}
