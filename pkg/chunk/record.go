// pkg/chunk/record.go

package chunk

import "io"

// LogRecord is a record stored in a chunk. WriteTo serializes the record; it is
// given the global position the record is going to be stored at.
type LogRecord interface {
	WriteTo(position int64, w io.Writer) error
}

// DecodeFunc rebuilds a record from the bytes written by LogRecord.WriteTo.
// Returning a nil record or an error marks the bytes as invalid. For streams with
// fixed-size records the unwritten part of a chunk is zero filled, so a decoder
// must reject an all-zero buffer.
type DecodeFunc func(data []byte) (LogRecord, error)

// RecordWriteResult is the outcome of Chunk.TryAppend. A result without Success
// means the chunk has not enough space left for the record.
type RecordWriteResult struct {
	Success  bool
	Position int64
}

func NotEnoughSpace() RecordWriteResult {
	return RecordWriteResult{Position: -1}
}

func Successful(position int64) RecordWriteResult {
	return RecordWriteResult{Success: true, Position: position}
}
