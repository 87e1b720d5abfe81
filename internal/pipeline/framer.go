package pipeline

import (
	"encoding/binary"
	"io"

	"github.com/nimbusio/beam/internal/chunk"
	"github.com/nimbusio/beam/internal/queue"
	"github.com/nimbusio/beam/internal/workerctx"
	"github.com/nimbusio/beam/internal/xerrors"
)

// MaxFrameChunkSize is the largest payload a chunk frame's u16 length field
// can carry.
const MaxFrameChunkSize = 65535

// FrameSender drains ciphertext chunks from in, in order, and writes each as
// a fixed binary frame to conn.
type FrameSender struct {
	ctx    *workerctx.Context
	conn   io.Writer
	in     *queue.Bounded[*chunk.Chunk]
	inDone *AtomicFlag
	sent   *Counter
}

func NewFrameSender(ctx *workerctx.Context, conn io.Writer, in *queue.Bounded[*chunk.Chunk], inDone *AtomicFlag, sent *Counter) *FrameSender {
	return &FrameSender{ctx: ctx, conn: conn, in: in, inDone: inDone, sent: sent}
}

// Run writes every chunk popped from in to conn as:
//
//	u64 seq, u8 compressed, u16 original_size, u16 chunk_size, []byte payload
func (s *FrameSender) Run() error {
	return drain(s.ctx, s.in, s.inDone, func(c *chunk.Chunk) error {
		if c.Size() > MaxFrameChunkSize {
			return xerrors.NewProtocol("chunk %d exceeds max frame size %d bytes", c.Seq(), MaxFrameChunkSize)
		}
		if err := binary.Write(s.conn, binary.LittleEndian, c.Seq()); err != nil {
			return xerrors.NewNet(xerrors.Disconnected, err)
		}
		compressedFlag := uint8(0)
		if c.Compressed() {
			compressedFlag = 1
		}
		if err := binary.Write(s.conn, binary.LittleEndian, compressedFlag); err != nil {
			return xerrors.NewNet(xerrors.Disconnected, err)
		}
		if err := binary.Write(s.conn, binary.LittleEndian, c.OriginalSize()); err != nil {
			return xerrors.NewNet(xerrors.Disconnected, err)
		}
		if err := binary.Write(s.conn, binary.LittleEndian, uint16(c.Size())); err != nil {
			return xerrors.NewNet(xerrors.Disconnected, err)
		}
		if _, err := s.conn.Write(c.Payload()); err != nil {
			return xerrors.NewNet(xerrors.Disconnected, err)
		}
		s.sent.Inc()
		return nil
	})
}

// FrameReceiver reads exactly numChunks frames from conn, in order, and
// pushes each as a ciphertext chunk to out.
type FrameReceiver struct {
	ctx       *workerctx.Context
	conn      io.Reader
	numChunks uint32
	out       *queue.Bounded[*chunk.Chunk]
	outDone   *AtomicFlag
}

func NewFrameReceiver(ctx *workerctx.Context, conn io.Reader, numChunks uint32, out *queue.Bounded[*chunk.Chunk], outDone *AtomicFlag) *FrameReceiver {
	return &FrameReceiver{ctx: ctx, conn: conn, numChunks: numChunks, out: out, outDone: outDone}
}

func (r *FrameReceiver) Run() error {
	defer r.outDone.Set()
	for i := uint32(0); i < r.numChunks; i++ {
		if r.ctx.ShouldAbort() {
			err := r.ctx.Err()
			return err
		}
		var seq uint64
		if err := binary.Read(r.conn, binary.LittleEndian, &seq); err != nil {
			err = xerrors.NewNet(xerrors.Disconnected, err)
			r.ctx.HandleError(err)
			return err
		}
		var compressedFlag uint8
		if err := binary.Read(r.conn, binary.LittleEndian, &compressedFlag); err != nil {
			err = xerrors.NewNet(xerrors.Disconnected, err)
			r.ctx.HandleError(err)
			return err
		}
		var originalSize uint16
		if err := binary.Read(r.conn, binary.LittleEndian, &originalSize); err != nil {
			err = xerrors.NewNet(xerrors.Disconnected, err)
			r.ctx.HandleError(err)
			return err
		}
		var chunkSize uint16
		if err := binary.Read(r.conn, binary.LittleEndian, &chunkSize); err != nil {
			err = xerrors.NewNet(xerrors.Disconnected, err)
			r.ctx.HandleError(err)
			return err
		}
		payload := make([]byte, chunkSize)
		if _, err := io.ReadFull(r.conn, payload); err != nil {
			err = xerrors.NewNet(xerrors.Disconnected, err)
			r.ctx.HandleError(err)
			return err
		}
		r.out.Push(chunk.NewTransformed(seq, payload, originalSize, compressedFlag == 1))
	}
	return nil
}
