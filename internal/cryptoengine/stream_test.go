package cryptoengine

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, err := RandomSalt()
	if err != nil {
		t.Fatalf("RandomSalt: %v", err)
	}
	key, err := DeriveKey("correct horse battery staple", salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	enc, header, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	dec, err := NewDecryptor(key, header)
	if err != nil {
		t.Fatalf("NewDecryptor: %v", err)
	}

	plains := [][]byte{[]byte("first chunk"), []byte("second chunk"), []byte("final chunk")}
	for i, p := range plains {
		seq := uint64(i + 1)
		isFinal := i == len(plains)-1
		ct, err := enc.Seal(seq, p, isFinal)
		if err != nil {
			t.Fatalf("Seal(%d): %v", seq, err)
		}
		got, gotFinal, err := dec.Open(seq, ct)
		if err != nil {
			t.Fatalf("Open(%d): %v", seq, err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("chunk %d: got %q want %q", seq, got, p)
		}
		if gotFinal != isFinal {
			t.Fatalf("chunk %d: isFinal got %v want %v", seq, gotFinal, isFinal)
		}
	}
}

func TestOpenRejectsBitFlip(t *testing.T) {
	key, _ := DeriveKey("password", Salt{})
	enc, header, _ := NewEncryptor(key)
	dec, _ := NewDecryptor(key, header)

	ct, _ := enc.Seal(1, []byte("payload"), true)
	ct[0] ^= 0x01

	if _, _, err := dec.Open(1, ct); err == nil {
		t.Fatalf("Open succeeded on tampered ciphertext")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key1, _ := DeriveKey("password-one", Salt{})
	key2, _ := DeriveKey("password-two", Salt{})

	enc, header, _ := NewEncryptor(key1)
	dec, _ := NewDecryptor(key2, header)

	ct, _ := enc.Seal(1, []byte("payload"), true)
	if _, _, err := dec.Open(1, ct); err == nil {
		t.Fatalf("Open succeeded with mismatched key")
	}
}

func TestOpenRejectsReorderedSeq(t *testing.T) {
	key, _ := DeriveKey("password", Salt{})
	enc, header, _ := NewEncryptor(key)
	dec, _ := NewDecryptor(key, header)

	ct, _ := enc.Seal(2, []byte("payload"), false)
	if _, _, err := dec.Open(3, ct); err == nil {
		t.Fatalf("Open succeeded against the wrong sequence number")
	}
}

func TestHandshakeSealOpen(t *testing.T) {
	key, _ := DeriveKey("shared secret", Salt{})
	nonce, ct, err := SealHandshake(key)
	if err != nil {
		t.Fatalf("SealHandshake: %v", err)
	}
	if !OpenHandshake(key, nonce, ct) {
		t.Fatalf("OpenHandshake rejected a genuine handshake")
	}
}

func TestHandshakeWrongPassword(t *testing.T) {
	key1, _ := DeriveKey("password-one", Salt{})
	key2, _ := DeriveKey("password-two", Salt{})

	nonce, ct, err := SealHandshake(key1)
	if err != nil {
		t.Fatalf("SealHandshake: %v", err)
	}
	if OpenHandshake(key2, nonce, ct) {
		t.Fatalf("OpenHandshake accepted a mismatched password")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, _ := RandomSalt()
	k1, err := DeriveKey("same-password", salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := DeriveKey("same-password", salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("DeriveKey not deterministic for identical inputs")
	}
}
