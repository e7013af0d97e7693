// pkg/chunk/header.go

package chunk

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	ChunkHeaderSize = 128
	ChunkFooterSize = 128
)

var enc = binary.LittleEndian

// ChunkHeader is the fixed metadata at the beginning of every chunk. The data
// region of chunk N covers the global positions [N*size, (N+1)*size).
type ChunkHeader struct {
	ChunkNumber        int32
	ChunkDataTotalSize int32
}

func NewChunkHeader(chunkNumber, chunkDataTotalSize int32) *ChunkHeader {
	if chunkNumber < 0 {
		panic(fmt.Sprintf("invalid chunk number %d", chunkNumber))
	}
	if chunkDataTotalSize <= 0 {
		panic(fmt.Sprintf("invalid chunk data size %d", chunkDataTotalSize))
	}
	return &ChunkHeader{ChunkNumber: chunkNumber, ChunkDataTotalSize: chunkDataTotalSize}
}

func (h *ChunkHeader) ChunkDataStartPosition() int64 {
	return int64(h.ChunkNumber) * int64(h.ChunkDataTotalSize)
}

func (h *ChunkHeader) ChunkDataEndPosition() int64 {
	return h.ChunkDataStartPosition() + int64(h.ChunkDataTotalSize)
}

func (h *ChunkHeader) IsPositionInChunk(globalPosition int64) bool {
	return globalPosition >= h.ChunkDataStartPosition() && globalPosition < h.ChunkDataEndPosition()
}

// GetLocalDataPosition converts a global position into an offset of the data region.
func (h *ChunkHeader) GetLocalDataPosition(globalPosition int64) (int64, error) {
	if !h.IsPositionInChunk(globalPosition) {
		return 0, fmt.Errorf("global position %d is out of chunk #%d [%d, %d)",
			globalPosition, h.ChunkNumber, h.ChunkDataStartPosition(), h.ChunkDataEndPosition())
	}
	return globalPosition - h.ChunkDataStartPosition(), nil
}

func (h *ChunkHeader) AsByteArray() []byte {
	b := make([]byte, ChunkHeaderSize)
	enc.PutUint32(b[0:4], uint32(h.ChunkNumber))
	enc.PutUint32(b[4:8], uint32(h.ChunkDataTotalSize))
	return b
}

func (h *ChunkHeader) String() string {
	return fmt.Sprintf("[ChunkNumber:%d, ChunkDataTotalSize:%d, ChunkDataStartPosition:%d, ChunkDataEndPosition:%d]",
		h.ChunkNumber, h.ChunkDataTotalSize, h.ChunkDataStartPosition(), h.ChunkDataEndPosition())
}

// ReadHeader reads a header from the first ChunkHeaderSize bytes of r.
func ReadHeader(r io.Reader) (*ChunkHeader, error) {
	b := make([]byte, ChunkHeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	h := &ChunkHeader{
		ChunkNumber:        int32(enc.Uint32(b[0:4])),
		ChunkDataTotalSize: int32(enc.Uint32(b[4:8])),
	}
	if h.ChunkNumber < 0 || h.ChunkDataTotalSize <= 0 {
		return nil, fmt.Errorf("invalid header %s", h)
	}
	return h, nil
}

// ChunkFooter is written once when a chunk is completed and records how many
// data bytes the chunk actually holds.
type ChunkFooter struct {
	ChunkDataTotalSize int32
}

func NewChunkFooter(chunkDataTotalSize int32) *ChunkFooter {
	if chunkDataTotalSize < 0 {
		panic(fmt.Sprintf("invalid chunk data size %d", chunkDataTotalSize))
	}
	return &ChunkFooter{ChunkDataTotalSize: chunkDataTotalSize}
}

func (f *ChunkFooter) AsByteArray() []byte {
	b := make([]byte, ChunkFooterSize)
	enc.PutUint32(b[0:4], uint32(f.ChunkDataTotalSize))
	return b
}

func (f *ChunkFooter) String() string {
	return fmt.Sprintf("[ChunkDataTotalSize:%d]", f.ChunkDataTotalSize)
}

func ReadFooter(r io.Reader) (*ChunkFooter, error) {
	b := make([]byte, ChunkFooterSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	f := &ChunkFooter{ChunkDataTotalSize: int32(enc.Uint32(b[0:4]))}
	if f.ChunkDataTotalSize < 0 {
		return nil, fmt.Errorf("invalid footer %s", f)
	}
	return f, nil
}
