// pkg/chunk/header_test.go

package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkHeader(t *testing.T) {
	h := NewChunkHeader(3, 1000)
	require.Equal(t, int64(3000), h.ChunkDataStartPosition())
	require.Equal(t, int64(4000), h.ChunkDataEndPosition())
	require.True(t, h.IsPositionInChunk(3000))
	require.True(t, h.IsPositionInChunk(3999))
	require.False(t, h.IsPositionInChunk(4000))

	local, err := h.GetLocalDataPosition(3500)
	require.NoError(t, err)
	require.Equal(t, int64(500), local)
	_, err = h.GetLocalDataPosition(2999)
	require.Error(t, err)

	b := h.AsByteArray()
	require.Len(t, b, ChunkHeaderSize)
	require.Equal(t, []byte{3, 0, 0, 0, 0xe8, 0x03, 0, 0}, b[:8])
	require.Equal(t, make([]byte, ChunkHeaderSize-8), b[8:])

	read, err := ReadHeader(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, h, read)

	_, err = ReadHeader(bytes.NewReader(b[:10]))
	require.Error(t, err)
	_, err = ReadHeader(bytes.NewReader(make([]byte, ChunkHeaderSize)))
	require.Error(t, err)
}

func TestChunkFooter(t *testing.T) {
	f := NewChunkFooter(64)
	b := f.AsByteArray()
	require.Len(t, b, ChunkFooterSize)
	require.Equal(t, []byte{64, 0, 0, 0}, b[:4])

	read, err := ReadFooter(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, int32(64), read.ChunkDataTotalSize)

	empty, err := ReadFooter(bytes.NewReader(NewChunkFooter(0).AsByteArray()))
	require.NoError(t, err)
	require.Zero(t, empty.ChunkDataTotalSize)
}

func TestRecordWriteResult(t *testing.T) {
	require.False(t, NotEnoughSpace().Success)
	r := Successful(42)
	require.True(t, r.Success)
	require.Equal(t, int64(42), r.Position)
}
