// pkg/chunk/reader.go

package chunk

import "fmt"

// ChunkReader reads records by global position. Positions at or beyond the
// writer position are not readable yet.
type ChunkReader struct {
	manager *ChunkManager
	writer  *ChunkWriter
}

func NewChunkReader(manager *ChunkManager, writer *ChunkWriter) *ChunkReader {
	return &ChunkReader{manager: manager, writer: writer}
}

// TryReadAt returns the record at globalPosition, or nil when nothing was
// written there yet. With autoCache a completed chunk may be loaded into memory.
func (r *ChunkReader) TryReadAt(globalPosition int64, decode DecodeFunc, autoCache bool) (LogRecord, error) {
	if globalPosition >= r.writer.GlobalPosition() {
		return nil, nil
	}
	c := r.manager.GetChunkFor(globalPosition)
	if c == nil {
		return nil, &ChunkError{
			Kind:  ErrChunkNotFound,
			Chunk: r.manager.name,
			Msg:   fmt.Sprintf("no chunk holds position %d", globalPosition),
		}
	}
	return c.TryReadAt(globalPosition-c.header.ChunkDataStartPosition(), decode, autoCache)
}
