// Package cryptoengine derives the password-based key used by a transfer
// session and implements the handshake seal/open and the chunked streaming
// AEAD that authenticates every chunk on the wire.
package cryptoengine

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/nimbusio/beam/internal/xerrors"
)

const (
	// SaltSize is the length in bytes of the Argon2id salt exchanged in
	// the handshake.
	SaltSize = 16

	// KeySize is the derived key length, matching XChaCha20-Poly1305.
	KeySize = 32

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// Salt is the random value mixed into password-based key derivation so the
// same password yields a different key on every session.
type Salt [SaltSize]byte

// Key is the symmetric key derived from a password and salt, used both to
// open the handshake tag and to seed the streaming cipher.
type Key [KeySize]byte

// RandomSalt returns a freshly generated, uniformly random Salt.
func RandomSalt() (Salt, error) {
	var s Salt
	if _, err := rand.Read(s[:]); err != nil {
		return s, xerrors.NewCrypto(xerrors.InitFailed, fmt.Errorf("generate salt: %w", err))
	}
	return s, nil
}

// DeriveKey derives a Key from password and salt using Argon2id with
// moderate cost parameters. The derivation is deterministic: the same
// password and salt always yield the same key.
func DeriveKey(password string, salt Salt) (Key, error) {
	var k Key
	if password == "" {
		return k, xerrors.NewCrypto(xerrors.KdfFailed, fmt.Errorf("empty password"))
	}
	derived := argon2.IDKey([]byte(password), salt[:], argon2Time, argon2Memory, argon2Threads, KeySize)
	copy(k[:], derived)
	return k, nil
}
