package chunk

import "testing"

func TestNewPlainDerivesOriginalSize(t *testing.T) {
	c := NewPlain(3, []byte("hello"))
	if c.Seq() != 3 {
		t.Fatalf("Seq() = %d, want 3", c.Seq())
	}
	if c.Size() != 5 || c.OriginalSize() != 5 {
		t.Fatalf("Size()=%d OriginalSize()=%d, want 5/5", c.Size(), c.OriginalSize())
	}
	if c.Compressed() {
		t.Fatal("NewPlain chunk should not be marked compressed")
	}
}

func TestNewTransformedKeepsDistinctSizes(t *testing.T) {
	ciphertext := make([]byte, 32)
	c := NewTransformed(1, ciphertext, 16, false)
	if c.Size() != 32 {
		t.Fatalf("Size() = %d, want 32", c.Size())
	}
	if c.OriginalSize() != 16 {
		t.Fatalf("OriginalSize() = %d, want 16", c.OriginalSize())
	}
}
