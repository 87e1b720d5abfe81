package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestNewComputesChunking(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.bin", 5000)
	writeTempFile(t, dir, "b.bin", 100)

	req, err := New(dir, []string{"a.bin", "b.bin"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if req.TransferSize != 5100 {
		t.Fatalf("TransferSize = %d, want 5100", req.TransferSize)
	}
	if req.ChunkSize != MaxChunkSize {
		t.Fatalf("ChunkSize = %d, want %d", req.ChunkSize, MaxChunkSize)
	}
	wantFinal := uint32(5100 % MaxChunkSize)
	if req.FinalChunkSize != wantFinal {
		t.Fatalf("FinalChunkSize = %d, want %d", req.FinalChunkSize, wantFinal)
	}
	wantChunks := uint32(5100/MaxChunkSize + 1)
	if req.NumChunks != wantChunks {
		t.Fatalf("NumChunks = %d, want %d", req.NumChunks, wantChunks)
	}
}

func TestNewRejectsEmptyFileSet(t *testing.T) {
	if _, err := New(t.TempDir(), nil); err == nil {
		t.Fatalf("New succeeded with no files")
	}
}

func TestEncodeDecodeIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "small.txt", 42)

	req, err := New(dir, []string{"small.txt"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	encoded, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	reencoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("Encode (round 2): %v", err)
	}
	if !bytes.Equal(encoded, reencoded) {
		t.Fatalf("Decode(Encode(r)) is not stable under re-encoding")
	}
	if decoded.NumChunks != req.NumChunks || decoded.ChunkSize != req.ChunkSize {
		t.Fatalf("decoded request does not match original: %+v vs %+v", decoded, req)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "f.bin", 10)
	req, _ := New(dir, []string{"f.bin"})
	encoded, _ := Encode(req)

	if _, err := Decode(encoded[:len(encoded)-3]); err == nil {
		t.Fatalf("Decode succeeded on truncated input")
	}
}

func TestDecodeRejectsInconsistentChunking(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "f.bin", 10)
	req, _ := New(dir, []string{"f.bin"})
	req.NumChunks += 1
	encoded, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(encoded); err == nil {
		t.Fatalf("Decode accepted an internally inconsistent request")
	}
}

func TestWriteReadFramed(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "f.bin", 4200)
	req, _ := New(dir, []string{"f.bin"})

	var buf bytes.Buffer
	if err := WriteFramed(&buf, req); err != nil {
		t.Fatalf("WriteFramed: %v", err)
	}
	got, err := ReadFramed(&buf)
	if err != nil {
		t.Fatalf("ReadFramed: %v", err)
	}
	if got.NumChunks != req.NumChunks || got.Files[0].RelativePath != req.Files[0].RelativePath {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, req)
	}
}
