package cryptoengine

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/nimbusio/beam/internal/xerrors"
)

// NonceSize is the length in bytes of an XChaCha20-Poly1305 nonce.
const NonceSize = chacha20poly1305.NonceSizeX

// Nonce is a random value that must never be reused under the same key.
type Nonce [NonceSize]byte

// handshakeTag is the fixed plaintext both sides must agree the handshake
// ciphertext decrypts to. Its presence after decryption is what proves both
// peers derived the same key from the same password.
var handshakeTag = []byte("trit_bonjour")

// RandomNonce returns a freshly generated, uniformly random Nonce.
func RandomNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, xerrors.NewCrypto(xerrors.InitFailed, fmt.Errorf("generate nonce: %w", err))
	}
	return n, nil
}

// SealHandshake encrypts the fixed handshake tag under key with a fresh
// random nonce, returning the nonce and the resulting ciphertext.
func SealHandshake(key Key) (Nonce, []byte, error) {
	nonce, err := RandomNonce()
	if err != nil {
		return nonce, nil, err
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nonce, nil, xerrors.NewCrypto(xerrors.InitFailed, err)
	}
	ciphertext := aead.Seal(nil, nonce[:], handshakeTag, nil)
	return nonce, ciphertext, nil
}

// OpenHandshake decrypts ciphertext under key and nonce and reports whether
// it recovers the fixed handshake tag, i.e. whether both peers share the
// same password-derived key.
func OpenHandshake(key Key, nonce Nonce, ciphertext []byte) bool {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return false
	}
	plain, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(plain, handshakeTag) == 1
}
