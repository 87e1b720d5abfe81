package cryptoengine

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/nimbusio/beam/internal/xerrors"
)

// Overhead is the number of bytes the streaming cipher adds to every chunk.
const Overhead = chacha20poly1305.Overhead

// HeaderSize is the length in bytes of the random base nonce an Encryptor
// generates and that a Decryptor must be given to install matching state.
const HeaderSize = NonceSize

// Header is the random per-session base nonce the streaming cipher mixes
// with each chunk's sequence number to derive a unique per-chunk nonce.
type Header [HeaderSize]byte

// deriveNonce mixes a chunk's sequence number, and whether it is the final
// chunk of the stream, into the session's base nonce. XORing the sequence
// number into the low 8 bytes guarantees a distinct nonce per chunk; folding
// the final-chunk flag into the nonce binds stream truncation into the AEAD
// tag the same way the "last chunk" bit does in the STREAM construction this
// is adapted from, so a truncated transfer fails authentication instead of
// silently decrypting as a short file.
func deriveNonce(header Header, seq uint64, isFinal bool) (n [NonceSize]byte) {
	copy(n[:], header[:])
	var seqBytes [8]byte
	binary.LittleEndian.PutUint64(seqBytes[:], seq)
	for i := 0; i < 8; i++ {
		n[i] ^= seqBytes[i]
	}
	if isFinal {
		n[HeaderSize-1] ^= 0x80
	}
	return n
}

// Encryptor seals chunks in order under a single session key and a random
// header generated at construction time.
type Encryptor struct {
	aead   cipher.AEAD
	header Header
}

// NewEncryptor initializes streaming encryption state for key with a freshly
// generated random Header, returning it for transmission to a peer that
// will construct a matching Decryptor with NewDecryptor.
func NewEncryptor(key Key) (*Encryptor, Header, error) {
	h, err := RandomNonce()
	if err != nil {
		return nil, Header{}, err
	}
	header := Header(h)
	enc, err := NewEncryptorWithHeader(key, header)
	return enc, header, err
}

// NewEncryptorWithHeader initializes streaming encryption state for key
// using a header chosen (and already transmitted) earlier, such as the one
// generated during the handshake.
func NewEncryptorWithHeader(key Key, header Header) (*Encryptor, error) {
	aead, err := newXChaCha20Poly1305(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead, header: header}, nil
}

// Seal encrypts and authenticates plain as chunk seq, setting isFinal on the
// last chunk of the stream. The returned ciphertext is len(plain)+Overhead
// bytes.
func (e *Encryptor) Seal(seq uint64, plain []byte, isFinal bool) ([]byte, error) {
	nonce := deriveNonce(e.header, seq, isFinal)
	return e.aead.Seal(nil, nonce[:], plain, nil), nil
}

// Decryptor opens chunks in order under a single session key and the header
// produced by the peer's Encryptor.
type Decryptor struct {
	aead   cipher.AEAD
	header Header
}

// NewDecryptor initializes streaming decryption state for key using header
// received from the peer.
func NewDecryptor(key Key, header Header) (*Decryptor, error) {
	aead, err := newXChaCha20Poly1305(key)
	if err != nil {
		return nil, err
	}
	return &Decryptor{aead: aead, header: header}, nil
}

// Open authenticates and decrypts ciphertext as chunk seq, trying the
// final-chunk nonce variant only if the non-final one fails authentication.
// It returns the recovered plaintext and which variant matched; the caller,
// which already knows the stream's chunk count, must verify that against
// seq == NumChunks. A chunk tampered with, encrypted under the wrong key, or
// reordered against its claimed seq fails authentication under both nonce
// variants.
func (d *Decryptor) Open(seq uint64, ciphertext []byte) (plain []byte, isFinal bool, err error) {
	if len(ciphertext) < Overhead {
		return nil, false, xerrors.NewCrypto(xerrors.LengthMismatch, fmt.Errorf("ciphertext shorter than AEAD overhead"))
	}
	for _, final := range [2]bool{false, true} {
		nonce := deriveNonce(d.header, seq, final)
		if p, openErr := d.aead.Open(nil, nonce[:], ciphertext, nil); openErr == nil {
			return p, final, nil
		}
	}
	return nil, false, xerrors.NewCrypto(xerrors.AuthFailed, fmt.Errorf("chunk %d failed authentication", seq))
}

func newXChaCha20Poly1305(key Key) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, xerrors.NewCrypto(xerrors.InitFailed, err)
	}
	return aead, nil
}
