package pipeline

import (
	"github.com/nimbusio/beam/internal/chunk"
	"github.com/nimbusio/beam/internal/cryptoengine"
	"github.com/nimbusio/beam/internal/queue"
	"github.com/nimbusio/beam/internal/workerctx"
	"github.com/nimbusio/beam/internal/xerrors"
)

// drain pops from in until it observes "empty and done", invoking fn on
// every item in order. It is the consumer-exit predicate shared by the
// encrypt, decrypt and frame-sender stages (the writer applies the same
// check in Writer.next): a producer sets its done flag only after its last
// push, so a plain check of done before the queue has drained would lose
// the tail.
func drain(ctx *workerctx.Context, in *queue.Bounded[*chunk.Chunk], inDone *AtomicFlag, fn func(*chunk.Chunk) error) error {
	for {
		if ctx.ShouldAbort() {
			return ctx.Err()
		}
		if c, ok := in.TryPop(); ok {
			if err := fn(c); err != nil {
				ctx.HandleError(err)
				return err
			}
			continue
		}
		if inDone.IsSet() && in.Empty() {
			return nil
		}
	}
}

// EncryptStage seals each plaintext chunk arriving on in and pushes the
// ciphertext to out, in order, on a single goroutine (the streaming cipher
// forbids out-of-order sealing).
type EncryptStage struct {
	ctx       *workerctx.Context
	enc       *cryptoengine.Encryptor
	numChunks uint64
	in        *queue.Bounded[*chunk.Chunk]
	inDone    *AtomicFlag
	out       *queue.Bounded[*chunk.Chunk]
	outDone   *AtomicFlag
}

func NewEncryptStage(ctx *workerctx.Context, enc *cryptoengine.Encryptor, numChunks uint64, in *queue.Bounded[*chunk.Chunk], inDone *AtomicFlag, out *queue.Bounded[*chunk.Chunk], outDone *AtomicFlag) *EncryptStage {
	return &EncryptStage{ctx: ctx, enc: enc, numChunks: numChunks, in: in, inDone: inDone, out: out, outDone: outDone}
}

func (s *EncryptStage) Run() error {
	defer s.outDone.Set()
	return drain(s.ctx, s.in, s.inDone, func(c *chunk.Chunk) error {
		if c.Seq() < 1 || c.Seq() > s.numChunks {
			return xerrors.NewProtocol("chunk sequence %d out of range [1, %d]", c.Seq(), s.numChunks)
		}
		isFinal := c.Seq() == s.numChunks
		ct, err := s.enc.Seal(c.Seq(), c.Payload(), isFinal)
		if err != nil {
			return err
		}
		s.out.Push(chunk.NewTransformed(c.Seq(), ct, c.OriginalSize(), false))
		return nil
	})
}

// DecryptStage opens each ciphertext chunk arriving on in and pushes the
// recovered plaintext to out, in order, on a single goroutine.
type DecryptStage struct {
	ctx       *workerctx.Context
	dec       *cryptoengine.Decryptor
	numChunks uint64
	in        *queue.Bounded[*chunk.Chunk]
	inDone    *AtomicFlag
	out       *queue.Bounded[*chunk.Chunk]
	outDone   *AtomicFlag

	// AuthFailHook, if set, is called with the sequence number and error of
	// any chunk that fails AEAD authentication, before Run returns the
	// error. Wired by session.Receiver to log the failure with session
	// context the pipeline layer doesn't have.
	AuthFailHook func(seq uint64, err error)
}

func NewDecryptStage(ctx *workerctx.Context, dec *cryptoengine.Decryptor, numChunks uint64, in *queue.Bounded[*chunk.Chunk], inDone *AtomicFlag, out *queue.Bounded[*chunk.Chunk], outDone *AtomicFlag) *DecryptStage {
	return &DecryptStage{ctx: ctx, dec: dec, numChunks: numChunks, in: in, inDone: inDone, out: out, outDone: outDone}
}

func (s *DecryptStage) Run() error {
	defer s.outDone.Set()
	return drain(s.ctx, s.in, s.inDone, func(c *chunk.Chunk) error {
		if c.Seq() < 1 || c.Seq() > s.numChunks {
			return xerrors.NewProtocol("chunk sequence %d out of range [1, %d]", c.Seq(), s.numChunks)
		}
		plain, isFinal, err := s.dec.Open(c.Seq(), c.Payload())
		if err != nil {
			if s.AuthFailHook != nil {
				s.AuthFailHook(c.Seq(), err)
			}
			return err
		}
		wantFinal := c.Seq() == s.numChunks
		if isFinal != wantFinal {
			return xerrors.NewProtocol("chunk %d final-chunk flag does not match its position in the stream", c.Seq())
		}
		s.out.Push(chunk.NewPlain(c.Seq(), plain))
		return nil
	})
}
