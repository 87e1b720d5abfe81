// Package chunk defines the immutable unit of data that moves through the
// transfer pipeline between the reader/writer and the cipher and framer
// stages.
package chunk

// Chunk is a single fixed-size (except possibly the last) slice of a
// transfer, tagged with its 1-based position in the stream. A Chunk is
// created once and never mutated; it is handed from stage to stage by
// reference.
type Chunk struct {
	seq          uint64
	payload      []byte
	originalSize uint16
	compressed   bool
}

// NewPlain wraps plaintext read directly off disk. OriginalSize is derived
// from the payload itself.
func NewPlain(seq uint64, payload []byte) *Chunk {
	return &Chunk{
		seq:          seq,
		payload:      payload,
		originalSize: uint16(len(payload)),
		compressed:   false,
	}
}

// NewTransformed wraps a payload whose size differs from its pre-transform
// size, such as ciphertext (which carries AEAD overhead) or, reserved for
// future use, compressed data.
func NewTransformed(seq uint64, payload []byte, originalSize uint16, compressed bool) *Chunk {
	return &Chunk{
		seq:          seq,
		payload:      payload,
		originalSize: originalSize,
		compressed:   compressed,
	}
}

func (c *Chunk) Seq() uint64          { return c.seq }
func (c *Chunk) Payload() []byte      { return c.payload }
func (c *Chunk) OriginalSize() uint16 { return c.originalSize }
func (c *Chunk) Compressed() bool     { return c.compressed }
func (c *Chunk) Size() int            { return len(c.payload) }
