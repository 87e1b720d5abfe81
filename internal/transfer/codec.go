package transfer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/nimbusio/beam/internal/xerrors"
)

// MaxPathLength bounds the encoded length of a FileInfo.RelativePath.
const MaxPathLength = 65535

// Encode serializes r into its wire form: a flat, little-endian, unpadded
// layout of the fixed header fields followed by each file's length-prefixed
// path and size.
func Encode(r *Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, r.NumFiles); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, r.TransferSize); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, r.ChunkSize); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, r.FinalChunkSize); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, r.NumChunks); err != nil {
		return nil, err
	}
	for _, f := range r.Files {
		path := []byte(f.RelativePath)
		if len(path) == 0 || len(path) > MaxPathLength {
			return nil, xerrors.NewProtocol("file path length %d out of range", len(path))
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint16(len(path))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(path); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, f.Size); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode parses the wire form produced by Encode and validates the chunking
// invariants it claims.
func Decode(data []byte) (*Request, error) {
	r := bytes.NewReader(data)

	var req Request
	if err := binary.Read(r, binary.LittleEndian, &req.NumFiles); err != nil {
		return nil, xerrors.NewProtocol("truncated request header: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &req.TransferSize); err != nil {
		return nil, xerrors.NewProtocol("truncated request header: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &req.ChunkSize); err != nil {
		return nil, xerrors.NewProtocol("truncated request header: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &req.FinalChunkSize); err != nil {
		return nil, xerrors.NewProtocol("truncated request header: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &req.NumChunks); err != nil {
		return nil, xerrors.NewProtocol("truncated request header: %v", err)
	}

	if req.ChunkSize == 0 || req.ChunkSize > MaxChunkSize {
		return nil, xerrors.NewProtocol("chunk size %d out of range", req.ChunkSize)
	}
	if req.FinalChunkSize >= req.ChunkSize {
		return nil, xerrors.NewProtocol("final chunk size %d not less than chunk size %d", req.FinalChunkSize, req.ChunkSize)
	}

	req.Files = make([]FileInfo, 0, req.NumFiles)
	for i := uint32(0); i < req.NumFiles; i++ {
		var pathLen uint16
		if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
			return nil, xerrors.NewProtocol("truncated file entry %d: %v", i, err)
		}
		if pathLen == 0 {
			return nil, xerrors.NewProtocol("file entry %d has zero-length path", i)
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return nil, xerrors.NewProtocol("truncated file path %d: %v", i, err)
		}
		var size uint64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, xerrors.NewProtocol("truncated file size %d: %v", i, err)
		}
		req.Files = append(req.Files, FileInfo{RelativePath: string(pathBytes), Size: size})
	}

	if err := validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func validate(req *Request) error {
	var total uint64
	for _, f := range req.Files {
		total += f.Size
	}
	if total != req.TransferSize {
		return xerrors.NewProtocol("transfer size %d does not match sum of file sizes %d", req.TransferSize, total)
	}
	wantChunks := req.TransferSize / uint64(req.ChunkSize)
	wantFinal := req.TransferSize % uint64(req.ChunkSize)
	if wantFinal != 0 {
		wantChunks++
	}
	if wantChunks != uint64(req.NumChunks) {
		return xerrors.NewProtocol("num_chunks %d inconsistent with transfer_size/chunk_size", req.NumChunks)
	}
	if wantFinal != uint64(req.FinalChunkSize) {
		return xerrors.NewProtocol("final_chunk_size %d inconsistent with transfer_size mod chunk_size", req.FinalChunkSize)
	}
	return nil
}

// WriteFramed writes the u64 length-prefixed encoding of r to w.
func WriteFramed(w io.Writer, r *Request) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(data))); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	if _, err := w.Write(data); err != nil {
		return xerrors.NewNet(xerrors.Disconnected, err)
	}
	return nil
}

// ReadFramed reads a u64 length-prefixed request from r and decodes it.
func ReadFramed(r io.Reader) (*Request, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, xerrors.NewNet(xerrors.Disconnected, err)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, xerrors.NewNet(xerrors.Disconnected, err)
	}
	return Decode(data)
}
