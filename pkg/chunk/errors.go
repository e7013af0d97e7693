// pkg/chunk/errors.go

package chunk

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Use errors.Is to match them against a returned error.
var (
	// ErrNotFound means a chunk file expected on disk is missing.
	ErrNotFound = errors.New("chunk file not found")
	// ErrBadData means the structure of a chunk is corrupted.
	ErrBadData = errors.New("bad chunk data")
	// ErrWrite reports a rejected or failed append.
	ErrWrite = errors.New("chunk write error")
	// ErrRead is corruption detected while decoding a record.
	ErrRead = errors.New("chunk read error")
	// ErrDestroying is returned to readers of a chunk that is being destroyed.
	ErrDestroying = errors.New("chunk is being destroyed")
	// ErrChunkNotFound means a position refers to a chunk the manager no longer has.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrWriterClosed is returned by a ChunkWriter that was closed or never opened.
	ErrWriterClosed = errors.New("chunk writer closed")
)

// ChunkError describes a failure on a specific chunk.
type ChunkError struct {
	Kind  error
	Chunk string
	Msg   string
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Chunk, e.Kind, e.Msg)
}

func (e *ChunkError) Unwrap() error {
	return e.Kind
}

func newError(kind error, chunk fmt.Stringer, format string, args ...interface{}) error {
	return &ChunkError{Kind: kind, Chunk: chunk.String(), Msg: fmt.Sprintf(format, args...)}
}
