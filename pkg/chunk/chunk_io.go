// pkg/chunk/chunk_io.go

package chunk

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

const recordFrameSize = 4

// TryAppend appends a record at the end of the chunk. A result without Success
// means the record does not fit and the chunk is unchanged.
func (c *Chunk) TryAppend(record LogRecord) (RecordWriteResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.completed.Load() {
		return NotEnoughSpace(), newError(ErrWrite, c, "cannot append to a completed chunk")
	}
	if c.writer == nil {
		return NotEnoughSpace(), newError(ErrWrite, c, "chunk is closed")
	}

	dataPos := c.dataPosition.Load()
	position := c.header.ChunkDataStartPosition() + dataPos
	c.recordBuf.Reset()
	if err := record.WriteTo(position, &c.recordBuf); err != nil {
		return NotEnoughSpace(), newError(ErrWrite, c, "serialize record at %d: %s", position, err)
	}
	payload := c.recordBuf.Bytes()

	var frame []byte
	if c.config.IsFixedDataSize() {
		if len(payload) != int(c.config.ChunkDataUnitSize) {
			return NotEnoughSpace(), newError(ErrWrite, c, "record size %d does not match unit size %d",
				len(payload), c.config.ChunkDataUnitSize)
		}
		frame = payload
	} else {
		if len(payload) == 0 {
			return NotEnoughSpace(), newError(ErrWrite, c, "empty record at %d", position)
		}
		if len(payload) > int(c.config.MaxLogRecordSize) {
			return NotEnoughSpace(), newError(ErrWrite, c, "record size %d exceeds max record size %d",
				len(payload), c.config.MaxLogRecordSize)
		}
		frame = c.frame(payload)
	}
	if dataPos+int64(len(frame)) > c.capacity() {
		return NotEnoughSpace(), nil
	}

	if _, err := c.writer.stream.Write(frame); err != nil {
		return NotEnoughSpace(), newError(ErrWrite, c, "write record at %d: %s", position, err)
	}
	if mirror := c.mirror.Load(); mirror != nil {
		result, err := mirror.appendFrame(frame)
		if err != nil {
			return NotEnoughSpace(), newError(ErrWrite, c, "append to memory mirror: %s", err)
		}
		if !result.Success || result.Position != position {
			return NotEnoughSpace(), newError(ErrWrite, c, "memory mirror appended at %d (success %t), expected %d",
				result.Position, result.Success, position)
		}
	} else if c.localCache != nil {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		c.localCache[dataPos%int64(len(c.localCache))].Store(&cacheItem{recordPosition: dataPos, recordBuffer: buf})
	}
	c.dataPosition.Store(dataPos + int64(len(frame)))
	if c.isMemory {
		c.flushedDataPosition.Store(dataPos + int64(len(frame)))
	}
	c.touch()
	if c.manager != nil {
		c.manager.recordWrite(c.header.ChunkNumber, int64(len(frame)))
	}
	return Successful(position), nil
}

// frame wraps a variable-size payload as [len][payload][len].
func (c *Chunk) frame(payload []byte) []byte {
	n := len(payload) + 2*recordFrameSize
	if cap(c.frameBuf) < n {
		c.frameBuf = make([]byte, n)
	}
	b := c.frameBuf[:n]
	enc.PutUint32(b, uint32(len(payload)))
	copy(b[recordFrameSize:], payload)
	enc.PutUint32(b[recordFrameSize+len(payload):], uint32(len(payload)))
	return b
}

// appendFrame appends bytes already framed by the primary chunk.
func (c *Chunk) appendFrame(frame []byte) (RecordWriteResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.completed.Load() || c.writer == nil {
		return NotEnoughSpace(), newError(ErrWrite, c, "chunk is not writable")
	}
	dataPos := c.dataPosition.Load()
	if dataPos+int64(len(frame)) > c.capacity() {
		return NotEnoughSpace(), nil
	}
	if _, err := c.writer.stream.Write(frame); err != nil {
		return NotEnoughSpace(), err
	}
	c.dataPosition.Store(dataPos + int64(len(frame)))
	c.flushedDataPosition.Store(dataPos + int64(len(frame)))
	c.touch()
	return Successful(c.header.ChunkDataStartPosition() + dataPos), nil
}

// TryReadAt reads the record starting at local data position `dataPosition`.
// It returns nil without error when nothing was written there yet.
func (c *Chunk) TryReadAt(dataPosition int64, decode DecodeFunc, autoCache bool) (LogRecord, error) {
	if c.destroying.Load() {
		return nil, newError(ErrDestroying, c, "read at %d", dataPosition)
	}
	limit := c.dataPosition.Load()
	if dataPosition >= limit {
		return nil, nil
	}
	if dataPosition < 0 {
		return nil, newError(ErrRead, c, "invalid data position %d", dataPosition)
	}
	c.touch()

	if c.localCache != nil {
		item := c.localCache[dataPosition%int64(len(c.localCache))].Load()
		if item != nil && item.recordPosition == dataPosition {
			if record, err := decode(item.recordBuffer); err == nil && record != nil {
				c.recordRead(readCached)
				return record, nil
			}
		}
	}

	if mirror := c.mirror.Load(); mirror != nil {
		record, err := mirror.TryReadAt(dataPosition, decode, false)
		if err == nil {
			c.recordRead(readUnmanaged)
			return record, nil
		}
		if !errors.Is(err, ErrDestroying) {
			return nil, err
		}
		// the mirror is being dropped, read the file instead
	}

	if autoCache && c.config.EnableCache && !c.isMemory && c.completed.Load() && c.mirror.Load() == nil &&
		c.caching.CompareAndSwap(false, true) {
		go func() {
			defer c.caching.Store(false)
			c.TryCacheInMemory(true)
		}()
	}

	record, err := c.readFromReaders(dataPosition, limit, decode)
	if err != nil {
		// The record may still sit in the write buffer.
		// TODO: tell torn records from unflushed ones instead of returning nil for both.
		if !c.completed.Load() && dataPosition >= c.flushedDataPosition.Load() {
			return nil, nil
		}
		return nil, err
	}
	if c.isMemory {
		c.recordRead(readUnmanaged)
	} else {
		c.recordRead(readFile)
	}
	return record, nil
}

func (c *Chunk) recordRead(kind readKind) {
	if c.manager != nil {
		c.manager.recordRead(c.header.ChunkNumber, kind)
	}
}

func (c *Chunk) readFromReaders(dataPosition, limit int64, decode DecodeFunc) (LogRecord, error) {
	h, err := c.readers.acquire()
	if err != nil {
		if c.destroying.Load() {
			return nil, newError(ErrDestroying, c, "read at %d", dataPosition)
		}
		return nil, newError(ErrRead, c, "read at %d: %s", dataPosition, err)
	}
	defer c.readers.release(h)
	r := io.NewSectionReader(h, ChunkHeaderSize+dataPosition, limit-dataPosition)
	record, _, err := c.readRecord(r, dataPosition, limit, decode)
	if err != nil && c.destroying.Load() {
		return nil, newError(ErrDestroying, c, "read at %d", dataPosition)
	}
	return record, err
}

// readRecord decodes the record at local position pos from r. The record must
// end at or before limit. It returns the record and its size on the chunk.
func (c *Chunk) readRecord(r io.Reader, pos, limit int64, decode DecodeFunc) (LogRecord, int64, error) {
	if c.config.IsFixedDataSize() {
		unit := int64(c.config.ChunkDataUnitSize)
		if pos+unit > limit {
			return nil, 0, newError(ErrRead, c, "no full record at %d, limit %d", pos, limit)
		}
		buf := make([]byte, unit)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, 0, newError(ErrRead, c, "read record at %d: %s", pos, err)
		}
		record, err := decode(buf)
		if err != nil || record == nil {
			return nil, 0, newError(ErrRead, c, "decode record at %d: %v", pos, err)
		}
		return record, unit, nil
	}

	var frame [recordFrameSize]byte
	if _, err := io.ReadFull(r, frame[:]); err != nil {
		return nil, 0, newError(ErrRead, c, "read record length at %d: %s", pos, err)
	}
	length := int32(enc.Uint32(frame[:]))
	if length <= 0 || length > c.config.MaxLogRecordSize {
		return nil, 0, newError(ErrRead, c, "invalid record length %d at %d", length, pos)
	}
	size := int64(length) + 2*recordFrameSize
	if pos+size > limit {
		return nil, 0, newError(ErrRead, c, "record of %d bytes at %d overruns %d", size, pos, limit)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, 0, newError(ErrRead, c, "read record at %d: %s", pos, err)
	}
	if _, err := io.ReadFull(r, frame[:]); err != nil {
		return nil, 0, newError(ErrRead, c, "read record suffix at %d: %s", pos, err)
	}
	if suffix := int32(enc.Uint32(frame[:])); suffix != length {
		return nil, 0, newError(ErrRead, c, "record length %d at %d does not match suffix %d", length, pos, suffix)
	}
	record, err := decode(buf)
	if err != nil || record == nil {
		return nil, 0, newError(ErrRead, c, "decode record at %d: %v", pos, err)
	}
	return record, size, nil
}

// tryParsingDataPosition scans records from the beginning of the data region
// and returns the end of the last valid one.
func (c *Chunk) tryParsingDataPosition(f io.ReaderAt, decode DecodeFunc) int64 {
	capacity := c.capacity()
	r := bufio.NewReaderSize(io.NewSectionReader(f, ChunkHeaderSize, capacity), c.config.ChunkReadBufferSize)
	var pos int64
	for pos < capacity {
		_, size, err := c.readRecord(r, pos, capacity, decode)
		if err != nil {
			c.log.Debugf("recovery scan stopped at %d: %s", pos, err)
			break
		}
		pos += size
	}
	return pos
}
