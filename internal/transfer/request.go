// Package transfer defines the transfer request descriptor that the sender
// negotiates with the receiver before any chunk is streamed, along with its
// wire codec.
package transfer

import (
	"os"
	"path/filepath"

	"github.com/nimbusio/beam/internal/xerrors"
)

// MaxChunkSize bounds ChunkSize; it is also the maximum payload size a
// chunk frame can carry before AEAD overhead.
const MaxChunkSize = 4096

// FileInfo names one file in a transfer request, relative to the sender's
// staging root.
type FileInfo struct {
	RelativePath string
	Size         uint64
}

// Request describes a proposed transfer: which files, in what order, and
// how the combined byte stream is chunked. It is built once on the sender,
// serialized, and reconstructed verbatim on the receiver.
type Request struct {
	NumFiles       uint32
	TransferSize   uint64
	ChunkSize      uint32
	FinalChunkSize uint32
	NumChunks      uint32
	Files          []FileInfo
}

// New builds a Request for paths, each resolved relative to baseDir, and
// computes its chunking parameters. It rejects an empty file set or a zero
// total size.
func New(baseDir string, paths []string) (*Request, error) {
	if len(paths) == 0 {
		return nil, xerrors.NewPrecondition("no files staged")
	}

	files := make([]FileInfo, 0, len(paths))
	var total uint64
	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(baseDir, p)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, xerrors.NewIo(xerrors.OpenFailed, abs, err)
		}
		rel, err := filepath.Rel(baseDir, abs)
		if err != nil {
			rel = filepath.Base(abs)
		}
		rel = filepath.ToSlash(rel)
		size := uint64(info.Size())
		files = append(files, FileInfo{RelativePath: rel, Size: size})
		total += size
	}

	if total == 0 {
		return nil, xerrors.NewPrecondition("total transfer size is zero")
	}

	chunkSize := uint64(MaxChunkSize)
	if total < chunkSize {
		chunkSize = total
	}
	finalChunkSize := total % chunkSize
	numChunks := total / chunkSize
	if finalChunkSize != 0 {
		numChunks++
	}

	return &Request{
		NumFiles:       uint32(len(files)),
		TransferSize:   total,
		ChunkSize:      uint32(chunkSize),
		FinalChunkSize: uint32(finalChunkSize),
		NumChunks:      uint32(numChunks),
		Files:          files,
	}, nil
}

// LastChunkSize returns the size in bytes of the final chunk of the
// transfer.
func (r *Request) LastChunkSize() uint32 {
	if r.FinalChunkSize == 0 {
		return r.ChunkSize
	}
	return r.FinalChunkSize
}
