// pkg/chunk/chunk.go

package chunk

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"AveMQ/pkg/utils"

	"github.com/juju/ratelimit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = utils.GetLogger("avemq")

// mirrorLoads coalesces concurrent loads of the same chunk into memory.
var mirrorLoads Controller

type cacheItem struct {
	recordPosition int64
	recordBuffer   []byte
}

// writerItem is the write state of a chunk that is not completed yet.
type writerItem struct {
	stream chunkStream
}

// Chunk is one segment of a stream. The data region of chunk N covers global
// positions [N*size, (N+1)*size). A chunk is either backed by a file or, for
// memory chunks, by an off-heap page of the same layout.
type Chunk struct {
	fileName string
	header   *ChunkHeader
	footer   atomic.Pointer[ChunkFooter]
	config   *Config
	manager  *ChunkManager
	isMemory bool
	log      logrus.FieldLogger

	writeMu   sync.Mutex
	writer    *writerItem
	recordBuf bytes.Buffer
	frameBuf  []byte

	cacheMu sync.Mutex
	mirror  atomic.Pointer[Chunk]
	caching atomic.Bool

	readers    *readerPool
	memory     *guardedPage
	localCache []atomic.Pointer[cacheItem]

	dataPosition        atomic.Int64
	flushedDataPosition atomic.Int64
	completed           atomic.Bool
	destroying          atomic.Bool
	lastActive          atomic.Int64
}

func newChunk(fileName string, manager *ChunkManager, config *Config, isMemory bool) *Chunk {
	c := &Chunk{
		fileName: fileName,
		config:   config,
		manager:  manager,
		isMemory: isMemory,
	}
	log := config.Logger
	if log == nil {
		log = logger
	}
	fields := logrus.Fields{"chunk": baseName(fileName)}
	if isMemory {
		fields["memory"] = true
	}
	c.log = log.WithFields(fields)
	c.touch()
	return c
}

// CreateNew creates an empty chunk. A file chunk is prepared as a temporary
// file and renamed into place, so a crash never leaves a chunk without header.
func CreateNew(fileName string, chunkNumber int32, manager *ChunkManager, config *Config, isMemory bool) (*Chunk, error) {
	c := newChunk(fileName, manager, config, isMemory)
	c.header = NewChunkHeader(chunkNumber, config.GetChunkDataSize())
	var err error
	if isMemory {
		err = c.initNewMemory()
	} else {
		err = c.initNewFile()
	}
	if err != nil {
		c.release()
		return nil, err
	}
	c.log.Debugf("chunk %s created", c.header)
	return c, nil
}

func (c *Chunk) fileSize() int64 {
	return ChunkHeaderSize + int64(c.header.ChunkDataTotalSize) + ChunkFooterSize
}

func (c *Chunk) capacity() int64 {
	return int64(c.header.ChunkDataTotalSize)
}

func (c *Chunk) initNewMemory() error {
	page, err := NewOffPage(int(c.fileSize()))
	if err != nil {
		return err
	}
	c.memory = newGuardedPage(page)
	if _, err = c.memory.WriteAt(c.header.AsByteArray(), 0); err != nil {
		return err
	}
	c.writer = &writerItem{stream: newMemoryStream(c.memory, ChunkHeaderSize)}
	return c.openMemoryReaders()
}

func (c *Chunk) initNewFile() error {
	dir := filepath.Dir(c.fileName)
	tmp := c.config.FileNamingStrategy.GetTempFileName(dir)
	if err := c.writeEmptyFile(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, c.fileName); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "rename %s to %s", tmp, c.fileName)
	}
	if err := syncDir(dir); err != nil {
		c.log.Warnf("sync dir %s: %s", dir, err)
	}

	f, err := os.OpenFile(c.fileName, os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrapf(err, "open %s", c.fileName)
	}
	stream, err := newFileStream(f, c.config.ChunkWriteBufferSize, ChunkHeaderSize)
	if err != nil {
		_ = f.Close()
		return err
	}
	c.writer = &writerItem{stream: stream}
	if err = c.openFileReaders(); err != nil {
		return err
	}
	c.initLocalCache()

	if c.config.EnableCache && c.isMemoryEnough() {
		mirror, err := CreateNew(c.fileName, c.header.ChunkNumber, nil, c.config, true)
		if err != nil {
			c.log.Warnf("create memory mirror: %s", err)
		} else {
			c.attachMirror(mirror)
		}
	}
	return nil
}

func (c *Chunk) writeEmptyFile(name string) error {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	defer f.Close()
	if _, err = f.Write(c.header.AsByteArray()); err != nil {
		return errors.Wrapf(err, "write header to %s", name)
	}
	if err = f.Truncate(c.fileSize()); err != nil {
		return errors.Wrapf(err, "resize %s", name)
	}
	return errors.Wrapf(f.Sync(), "sync %s", name)
}

// FromCompletedFile opens a completed chunk. With isMemory the whole file is
// loaded into memory.
func FromCompletedFile(fileName string, manager *ChunkManager, config *Config, isMemory bool) (*Chunk, error) {
	var limit *ratelimit.Bucket
	if manager != nil {
		limit = manager.loadLimit
	} else if isMemory {
		limit = newLoadLimit(config.CacheLoadBandwidth)
	}
	return fromCompletedFile(fileName, manager, config, isMemory, limit)
}

func fromCompletedFile(fileName string, manager *ChunkManager, config *Config, isMemory bool, limit *ratelimit.Bucket) (*Chunk, error) {
	c := newChunk(fileName, manager, config, isMemory)
	if err := c.initCompleted(limit); err != nil {
		c.release()
		return nil, err
	}
	return c, nil
}

func (c *Chunk) initCompleted(limit *ratelimit.Bucket) error {
	f, err := os.Open(c.fileName)
	if os.IsNotExist(err) {
		return newError(ErrNotFound, c, "%s", err)
	} else if err != nil {
		return errors.Wrapf(err, "open %s", c.fileName)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", c.fileName)
	}
	if fi.Size() < ChunkHeaderSize+ChunkFooterSize {
		return newError(ErrBadData, c, "file size %d is too small", fi.Size())
	}
	if c.header, err = ReadHeader(f); err != nil {
		return newError(ErrBadData, c, "read header: %s", err)
	}
	if err = c.checkCapacity(); err != nil {
		return err
	}
	footer, err := ReadFooter(io.NewSectionReader(f, fi.Size()-ChunkFooterSize, ChunkFooterSize))
	if err != nil {
		return newError(ErrBadData, c, "read footer: %s", err)
	}
	if footer.ChunkDataTotalSize > c.header.ChunkDataTotalSize {
		return newError(ErrBadData, c, "footer data size %d exceeds capacity %d",
			footer.ChunkDataTotalSize, c.header.ChunkDataTotalSize)
	}
	if c.config.IsFixedDataSize() && footer.ChunkDataTotalSize != c.header.ChunkDataTotalSize {
		return newError(ErrBadData, c, "fixed-size chunk holds %d of %d bytes",
			footer.ChunkDataTotalSize, c.header.ChunkDataTotalSize)
	}
	expected := ChunkHeaderSize + int64(footer.ChunkDataTotalSize) + ChunkFooterSize
	if fi.Size() != expected {
		return newError(ErrBadData, c, "file size %d, expected %d", fi.Size(), expected)
	}

	c.footer.Store(footer)
	c.dataPosition.Store(int64(footer.ChunkDataTotalSize))
	c.flushedDataPosition.Store(int64(footer.ChunkDataTotalSize))
	if c.isMemory {
		if err = c.loadIntoMemory(f, fi.Size(), limit); err != nil {
			return err
		}
		err = c.openMemoryReaders()
	} else {
		err = c.openFileReaders()
	}
	if err != nil {
		return err
	}
	c.completed.Store(true)
	return nil
}

func (c *Chunk) loadIntoMemory(f *os.File, size int64, limit *ratelimit.Bucket) error {
	page, err := NewOffPage(int(size))
	if err != nil {
		return err
	}
	c.memory = newGuardedPage(page)
	adviseSequential(f)
	r := withLimit(bufio.NewReaderSize(io.NewSectionReader(f, 0, size), c.config.ChunkReadBufferSize), limit)
	if _, err = io.ReadFull(r, page.Data); err != nil {
		return errors.Wrapf(err, "load %s into memory", c.fileName)
	}
	return nil
}

// checkCapacity rejects files written with another chunk size, their
// positions would not line up with the rest of the stream.
func (c *Chunk) checkCapacity() error {
	if size := c.config.GetChunkDataSize(); c.header.ChunkDataTotalSize != size {
		return newError(ErrBadData, c, "chunk data size %d does not match configured %d",
			c.header.ChunkDataTotalSize, size)
	}
	return nil
}

// FromOngoingFile opens the chunk that was being written. The data position
// is recovered by scanning records until the first one that fails to decode.
func FromOngoingFile(fileName string, manager *ChunkManager, config *Config, decode DecodeFunc) (*Chunk, error) {
	c := newChunk(fileName, manager, config, false)
	if err := c.initOngoing(decode); err != nil {
		c.release()
		return nil, err
	}
	return c, nil
}

func (c *Chunk) initOngoing(decode DecodeFunc) error {
	f, err := os.OpenFile(c.fileName, os.O_RDWR, 0644)
	if os.IsNotExist(err) {
		return newError(ErrNotFound, c, "%s", err)
	} else if err != nil {
		return errors.Wrapf(err, "open %s", c.fileName)
	}
	if c.header, err = ReadHeader(f); err != nil {
		_ = f.Close()
		return newError(ErrBadData, c, "read header: %s", err)
	}
	if err = c.checkCapacity(); err != nil {
		_ = f.Close()
		return err
	}

	pos := c.tryParsingDataPosition(f, decode)
	// zero whatever a torn write left behind the last record
	if err = f.Truncate(ChunkHeaderSize + pos); err == nil {
		err = f.Truncate(c.fileSize())
	}
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "reset tail of %s", c.fileName)
	}
	stream, err := newFileStream(f, c.config.ChunkWriteBufferSize, ChunkHeaderSize+pos)
	if err != nil {
		_ = f.Close()
		return err
	}
	c.writer = &writerItem{stream: stream}
	c.dataPosition.Store(pos)
	c.flushedDataPosition.Store(pos)
	if err = c.openFileReaders(); err != nil {
		return err
	}
	c.initLocalCache()
	c.log.Infof("chunk %s recovered, data position %d", c.header, pos)
	return nil
}

func (c *Chunk) openFileReaders() error {
	p, err := newReaderPool(c.config.ChunkReaderCount, c.log, func() (readerHandle, error) {
		f, err := os.Open(c.fileName)
		if err != nil {
			return nil, errors.Wrapf(err, "open reader of %s", c.fileName)
		}
		return f, nil
	})
	c.readers = p
	return err
}

func (c *Chunk) openMemoryReaders() error {
	p, err := newReaderPool(c.config.ChunkReaderCount, c.log, func() (readerHandle, error) {
		return &pageReader{c.memory}, nil
	})
	c.readers = p
	return err
}

func (c *Chunk) initLocalCache() {
	if c.config.EnableCache && c.config.ChunkLocalCacheSize > 0 && !c.isMemory {
		c.localCache = make([]atomic.Pointer[cacheItem], c.config.ChunkLocalCacheSize)
	}
}

func (c *Chunk) clearLocalCache() {
	for i := range c.localCache {
		c.localCache[i].Store(nil)
	}
}

func (c *Chunk) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// Complete seals the chunk: the file is cut to the written data, the footer
// is written and flushed, and no more appends are accepted.
func (c *Chunk) Complete() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.completed.Load() {
		return newError(ErrWrite, c, "chunk is already completed")
	}
	if c.writer == nil {
		return newError(ErrWrite, c, "chunk is closed")
	}
	dataPos := c.dataPosition.Load()
	if c.config.IsFixedDataSize() && dataPos != c.capacity() {
		return newError(ErrBadData, c, "fixed-size chunk completed at %d of %d bytes", dataPos, c.capacity())
	}

	footer := NewChunkFooter(int32(dataPos))
	stream := c.writer.stream
	if err := stream.Resize(ChunkHeaderSize + dataPos + ChunkFooterSize); err != nil {
		return newError(ErrWrite, c, "resize: %s", err)
	}
	if _, err := stream.WriteAt(footer.AsByteArray(), ChunkHeaderSize+dataPos); err != nil {
		return newError(ErrWrite, c, "write footer: %s", err)
	}
	if err := stream.Flush(true); err != nil {
		return newError(ErrWrite, c, "flush: %s", err)
	}
	c.footer.Store(footer)
	c.flushedDataPosition.Store(dataPos)
	c.completed.Store(true)
	if err := stream.Close(); err != nil {
		c.log.Warnf("close writer: %s", err)
	}
	c.writer = nil
	c.clearLocalCache()

	if !c.isMemory {
		if err := markReadOnly(c.fileName); err != nil {
			c.log.Warnf("mark read-only: %s", err)
		}
		if mirror := c.mirror.Load(); mirror != nil {
			if err := mirror.Complete(); err != nil {
				return newError(ErrWrite, c, "complete memory mirror: %s", err)
			}
		}
	}
	c.log.Infof("chunk completed, data size %d", dataPos)
	return nil
}

// Flush pushes buffered appends to the OS, or to disk with FlushToDisk, and
// advances the flushed watermark.
func (c *Chunk) Flush() error {
	if c.isMemory || c.completed.Load() {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writer == nil || c.completed.Load() {
		return nil
	}
	if err := c.writer.stream.Flush(c.config.FlushOption == FlushToDisk); err != nil {
		return errors.Wrapf(err, "flush %s", c)
	}
	c.flushedDataPosition.Store(c.dataPosition.Load())
	return nil
}

func (c *Chunk) isMemoryEnough() bool {
	total, used, err := c.config.MemoryInfo()
	if err != nil || total == 0 {
		if err != nil {
			c.log.Debugf("get memory info: %s", err)
		}
		return false
	}
	return (used+uint64(c.fileSize()))*100/total <= uint64(c.config.ChunkCacheMaxPercent)
}

func (c *Chunk) attachMirror(mirror *Chunk) {
	c.mirror.Store(mirror)
	if c.manager != nil {
		c.manager.pages.cache(c.header.ChunkNumber, mirror.memory.size())
	}
}

// TryCacheInMemory loads a completed file chunk into a memory mirror. It
// returns false when caching is disabled, the memory budget does not allow it
// or the load failed. With cascade the manager is asked to cache the next chunk.
func (c *Chunk) TryCacheInMemory(cascade bool) bool {
	if !c.config.EnableCache || c.isMemory || !c.completed.Load() || c.destroying.Load() {
		return false
	}
	if c.mirror.Load() != nil {
		return false
	}
	if !c.isMemoryEnough() {
		c.log.Debugf("not enough memory to cache chunk")
		return false
	}

	err := mirrorLoads.Execute(c.fileName, func() error {
		if c.mirror.Load() != nil {
			return nil
		}
		start := time.Now()
		var limit *ratelimit.Bucket
		if c.manager != nil {
			limit = c.manager.loadLimit
		} else {
			limit = newLoadLimit(c.config.CacheLoadBandwidth)
		}
		mirror, err := fromCompletedFile(c.fileName, nil, c.config, true, limit)
		if err != nil {
			return err
		}
		c.cacheMu.Lock()
		defer c.cacheMu.Unlock()
		if c.destroying.Load() || c.mirror.Load() != nil {
			mirror.release()
			return errors.New("chunk changed while loading")
		}
		c.attachMirror(mirror)
		c.log.Infof("cached in memory, used %s", time.Since(start))
		return nil
	})
	if err != nil {
		c.log.Warnf("cache in memory: %s", err)
		return false
	}
	if cascade && c.manager != nil {
		c.manager.TryCacheNextChunk(c)
	}
	return true
}

// UnCacheFromMemory drops the memory mirror of a completed chunk.
func (c *Chunk) UnCacheFromMemory() bool {
	if c.isMemory || !c.completed.Load() {
		return false
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.detachMirror()
}

// locked by cacheMu
func (c *Chunk) detachMirror() bool {
	mirror := c.mirror.Swap(nil)
	if mirror == nil {
		return false
	}
	if c.manager != nil {
		c.manager.pages.remove(c.header.ChunkNumber)
	}
	mirror.release()
	c.log.Infof("memory mirror released")
	return true
}

// Destroy removes the chunk. A memory chunk frees its memory; a file chunk
// must be completed and its file is deleted.
func (c *Chunk) Destroy() error {
	if c.isMemory {
		c.destroying.Store(true)
		c.release()
		return nil
	}
	if !c.completed.Load() {
		return newError(ErrWrite, c, "cannot destroy an ongoing chunk")
	}
	c.destroying.Store(true)
	c.UnCacheFromMemory()
	if c.readers != nil {
		c.readers.drain(c.config.ReaderDrainTimeout)
	}
	if err := os.Remove(c.fileName); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", c.fileName)
	}
	c.log.Infof("chunk destroyed")
	return nil
}

// Close flushes pending appends and releases every resource of the chunk.
// The file is kept.
func (c *Chunk) Close() error {
	var err error
	c.writeMu.Lock()
	if c.writer != nil {
		if err = c.writer.stream.Close(); err != nil {
			err = errors.Wrapf(err, "close writer of %s", c)
		}
		c.flushedDataPosition.Store(c.dataPosition.Load())
		c.writer = nil
	}
	c.writeMu.Unlock()

	c.cacheMu.Lock()
	c.detachMirror()
	c.cacheMu.Unlock()
	if c.readers != nil {
		c.readers.drain(c.config.ReaderDrainTimeout)
	}
	if c.memory != nil {
		c.destroying.Store(true)
		c.memory.free()
	}
	return err
}

// release frees readers and memory of a chunk that is not exposed to anybody,
// or of a memory chunk being dropped.
func (c *Chunk) release() {
	if c.isMemory {
		c.destroying.Store(true)
	}
	c.writeMu.Lock()
	if c.writer != nil {
		_ = c.writer.stream.Close()
		c.writer = nil
	}
	c.writeMu.Unlock()
	if c.readers != nil {
		c.readers.drain(c.config.ReaderDrainTimeout)
	}
	if c.memory != nil {
		c.destroying.Store(true)
		c.memory.free()
	}
	if m := c.mirror.Swap(nil); m != nil {
		m.release()
	}
}

func (c *Chunk) Header() *ChunkHeader {
	return c.header
}

// Footer is nil until the chunk is completed.
func (c *Chunk) Footer() *ChunkFooter {
	return c.footer.Load()
}

func (c *Chunk) FileName() string {
	return c.fileName
}

func (c *Chunk) IsCompleted() bool {
	return c.completed.Load()
}

func (c *Chunk) IsMemoryChunk() bool {
	return c.isMemory
}

func (c *Chunk) HasCachedChunk() bool {
	return c.mirror.Load() != nil
}

// DataPosition is the number of data bytes written into the chunk.
func (c *Chunk) DataPosition() int64 {
	return c.dataPosition.Load()
}

func (c *Chunk) GlobalDataPosition() int64 {
	return c.header.ChunkDataStartPosition() + c.dataPosition.Load()
}

// LastActiveTime returns the latest access of the chunk or its mirror.
func (c *Chunk) LastActiveTime() time.Time {
	t := c.lastActive.Load()
	if m := c.mirror.Load(); m != nil {
		if mt := m.lastActive.Load(); mt > t {
			t = mt
		}
	}
	return time.Unix(0, t)
}

func (c *Chunk) String() string {
	if c.header == nil {
		return fmt.Sprintf("#? (%s)", baseName(c.fileName))
	}
	return fmt.Sprintf("#%d (%s)", c.header.ChunkNumber, baseName(c.fileName))
}
