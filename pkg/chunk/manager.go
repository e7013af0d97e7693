// pkg/chunk/manager.go

package chunk

import (
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"AveMQ/pkg/meta"

	"github.com/google/uuid"
	"github.com/juju/ratelimit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	taskUncacheChunks = "uncache-chunks"
	taskLogStatistics = "log-statistics"
	taskFlushChunk    = "flush-chunk"
)

// ChunkManager owns the chunks of one stream, indexed by chunk number.
type ChunkManager struct {
	name     string
	config   *Config
	isMemory bool
	log      logrus.FieldLogger

	mu              sync.RWMutex
	chunks          map[int32]*Chunk
	nextChunkNumber int32
	closed          bool

	cachingNext atomic.Bool
	loadLimit   *ratelimit.Bucket
	pages       *memCache
	stats       *statistics
	tasks       *scheduler
}

// NewChunkManager validates a copy of config and creates an empty manager. In
// memory mode chunks live in off-heap memory only and nothing is persisted.
func NewChunkManager(name string, config *Config, isMemory bool) (*ChunkManager, error) {
	if config == nil {
		return nil, errors.New("config is nil")
	}
	cfg := *config
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config of %s", name)
	}
	if !isMemory && cfg.BasePath == "" {
		return nil, errors.Errorf("base path of %s is empty", name)
	}
	log := cfg.Logger.WithField("stream", name)
	return &ChunkManager{
		name:      name,
		config:    &cfg,
		isMemory:  isMemory,
		log:       log,
		chunks:    make(map[int32]*Chunk),
		loadLimit: newLoadLimit(cfg.CacheLoadBandwidth),
		pages:     newMemCache(name),
		stats:     newStatistics(name),
		tasks:     newScheduler(log),
	}, nil
}

func (m *ChunkManager) Name() string {
	return m.name
}

func (m *ChunkManager) Config() *Config {
	return m.config
}

func (m *ChunkManager) IsMemory() bool {
	return m.isMemory
}

func (m *ChunkManager) format() *meta.Format {
	return &meta.Format{
		Name:              m.name,
		UUID:              uuid.New().String(),
		ChunkDataSize:     m.config.GetChunkDataSize(),
		ChunkDataUnitSize: m.config.ChunkDataUnitSize,
		ChunkDataCount:    m.config.ChunkDataCount,
		FilePrefix:        filePrefix(m.config.FileNamingStrategy),
	}
}

func filePrefix(s FileNamingStrategy) string {
	if d, ok := s.(*DefaultFileNamingStrategy); ok {
		return d.Prefix()
	}
	return ""
}

func (m *ChunkManager) ensureFormat() error {
	want := m.format()
	format, err := meta.Load(m.config.BasePath)
	if os.IsNotExist(errors.Cause(err)) {
		if err = meta.Init(m.config.BasePath, want, false); err != nil {
			return err
		}
		m.log.Infof("stream initialized: %s", want)
		return nil
	} else if err != nil {
		return err
	}
	if err = format.Check(want); err != nil {
		return &ChunkError{Kind: ErrBadData, Chunk: m.config.BasePath, Msg: err.Error()}
	}
	return nil
}

// Load opens the chunks found in the base path: every file but the last is a
// completed chunk, the last one is recovered with decode.
func (m *ChunkManager) Load(decode DecodeFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isMemory {
		return nil
	}
	base := m.config.BasePath
	if err := os.MkdirAll(base, 0755); err != nil {
		return errors.Wrapf(err, "create %s", base)
	}
	if err := m.ensureFormat(); err != nil {
		return err
	}

	naming := m.config.FileNamingStrategy
	temps, err := naming.GetTempFiles(base)
	if err != nil {
		return errors.Wrapf(err, "list temp files of %s", base)
	}
	for _, name := range temps {
		if err := os.Remove(name); err != nil {
			m.log.Warnf("remove temp file %s: %s", name, err)
		} else {
			m.log.Infof("temp file %s removed", name)
		}
	}

	files, err := naming.GetChunkFiles(base)
	if err != nil {
		return errors.Wrapf(err, "list chunk files of %s", base)
	}
	for i, name := range files {
		c, err := m.openChunkFile(name, i == len(files)-1, decode)
		if err == nil {
			err = m.checkChunkFile(c, name)
			if err != nil {
				_ = c.Close()
			}
		}
		if err != nil {
			for _, c := range m.chunks {
				_ = c.Close()
			}
			m.chunks = make(map[int32]*Chunk)
			m.nextChunkNumber = 0
			return err
		}
		m.chunks[c.header.ChunkNumber] = c
		if c.header.ChunkNumber >= m.nextChunkNumber {
			m.nextChunkNumber = c.header.ChunkNumber + 1
		}
	}
	m.log.Infof("%d chunks loaded, next chunk #%d", len(files), m.nextChunkNumber)

	if m.config.EnableCache {
		m.preCache()
		m.tasks.startTask(taskUncacheChunks, m.config.EvictInterval, m.uncacheChunks)
	}
	return nil
}

func (m *ChunkManager) openChunkFile(name string, last bool, decode DecodeFunc) (*Chunk, error) {
	if last {
		fi, err := os.Stat(name)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", name)
		}
		// a sealed chunk is read-only, the next one was not created yet
		if !isReadOnly(fi) {
			return FromOngoingFile(name, m, m.config, decode)
		}
	}
	return FromCompletedFile(name, m, m.config, false)
}

// checkChunkFile verifies that the header of c agrees with its file name.
// locked
func (m *ChunkManager) checkChunkFile(c *Chunk, name string) error {
	number := c.header.ChunkNumber
	if want := m.config.FileNamingStrategy.GetFileNameFor(m.config.BasePath, number); want != name {
		return newError(ErrBadData, c, "header of %s claims chunk #%d, expected file %s", name, number, want)
	}
	if other, ok := m.chunks[number]; ok {
		return newError(ErrBadData, c, "chunk #%d is already loaded from %s", number, other.fileName)
	}
	return nil
}

// locked
func (m *ChunkManager) preCache() {
	if m.config.PreCacheChunkCount <= 0 {
		return
	}
	numbers := m.sortedNumbers()
	cached := 0
	for i := len(numbers) - 1; i >= 0 && cached < m.config.PreCacheChunkCount; i-- {
		c := m.chunks[numbers[i]]
		if c.IsCompleted() && c.TryCacheInMemory(false) {
			cached++
		}
	}
	if cached > 0 {
		m.log.Infof("%d chunks cached in memory", cached)
	}
}

// Start runs the background statistics report.
func (m *ChunkManager) Start() {
	if m.config.EnableStatistics {
		m.tasks.startTask(taskLogStatistics, m.config.StatisticsInterval, func(<-chan struct{}) {
			m.logStatistics()
		})
	}
}

// AddNewChunk creates the chunk following the last one.
func (m *ChunkManager) AddNewChunk() (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.Errorf("chunk manager %s is closed", m.name)
	}
	number := m.nextChunkNumber
	name := m.config.FileNamingStrategy.GetFileNameFor(m.config.BasePath, number)
	c, err := CreateNew(name, number, m, m.config, m.isMemory)
	if err != nil {
		return nil, errors.Wrapf(err, "create chunk #%d", number)
	}
	m.chunks[number] = c
	m.nextChunkNumber = number + 1
	m.log.Infof("chunk %s added", c)
	return c, nil
}

func (m *ChunkManager) GetChunk(number int32) *Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chunks[number]
}

// GetChunkFor returns the chunk holding a global position.
func (m *ChunkManager) GetChunkFor(globalPosition int64) *Chunk {
	if globalPosition < 0 {
		return nil
	}
	number := globalPosition / int64(m.config.GetChunkDataSize())
	if number > int64(^uint32(0)>>1) {
		return nil
	}
	return m.GetChunk(int32(number))
}

// locked
func (m *ChunkManager) sortedNumbers() []int32 {
	numbers := make([]int32, 0, len(m.chunks))
	for n := range m.chunks {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

func (m *ChunkManager) GetFirstChunk() *Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	numbers := m.sortedNumbers()
	if len(numbers) == 0 {
		return nil
	}
	return m.chunks[numbers[0]]
}

func (m *ChunkManager) GetLastChunk() *Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	numbers := m.sortedNumbers()
	if len(numbers) == 0 {
		return nil
	}
	return m.chunks[numbers[len(numbers)-1]]
}

// GetAllChunks returns the chunks ordered by number.
func (m *ChunkManager) GetAllChunks() []*Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	numbers := m.sortedNumbers()
	chunks := make([]*Chunk, len(numbers))
	for i, n := range numbers {
		chunks[i] = m.chunks[n]
	}
	return chunks
}

func (m *ChunkManager) GetChunkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// RemoveChunk drops a chunk from the manager and destroys it. It returns
// false when the chunk is not owned by the manager.
func (m *ChunkManager) RemoveChunk(c *Chunk) bool {
	m.mu.Lock()
	if m.chunks[c.header.ChunkNumber] != c {
		m.mu.Unlock()
		return false
	}
	delete(m.chunks, c.header.ChunkNumber)
	m.mu.Unlock()

	if err := c.Destroy(); err != nil {
		m.log.Errorf("destroy chunk %s: %s", c, err)
	}
	return true
}

// TryCacheNextChunk caches the chunk following current in the background. Only
// one such load runs at a time.
func (m *ChunkManager) TryCacheNextChunk(current *Chunk) {
	if !m.config.EnableCache || !m.cachingNext.CompareAndSwap(false, true) {
		return
	}
	next := m.GetChunk(current.header.ChunkNumber + 1)
	if next == nil || !next.IsCompleted() || next.IsMemoryChunk() || next.HasCachedChunk() {
		m.cachingNext.Store(false)
		return
	}
	go func() {
		defer m.cachingNext.Store(false)
		next.TryCacheInMemory(false)
	}()
}

func (m *ChunkManager) usedMemoryPercent() (uint64, bool) {
	total, used, err := m.config.MemoryInfo()
	if err != nil || total == 0 {
		return 0, false
	}
	return used * 100 / total, true
}

// uncacheChunks drops memory mirrors of inactive chunks, least recently used
// first, while the used memory is above ChunkCacheMinPercent.
func (m *ChunkManager) uncacheChunks(stop <-chan struct{}) {
	percent, ok := m.usedMemoryPercent()
	if !ok || percent < uint64(m.config.ChunkCacheMinPercent) {
		return
	}

	var candidates []*Chunk
	for _, c := range m.GetAllChunks() {
		if c.IsCompleted() && !c.IsMemoryChunk() && c.HasCachedChunk() {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastActiveTime().Before(candidates[j].LastActiveTime())
	})

	inactive := time.Duration(m.config.ChunkInactiveTimeMaxSeconds) * time.Second
	var evicted int
	for _, c := range candidates {
		if time.Since(c.LastActiveTime()) < inactive {
			break
		}
		if !c.UnCacheFromMemory() {
			continue
		}
		evicted++
		m.log.Infof("memory mirror of %s evicted, memory used %d%%", c, percent)
		if evicted >= m.config.MaxEvictPerPass {
			break
		}
		select {
		case <-stop:
			return
		case <-time.After(m.config.EvictPause):
		}
		if percent, ok = m.usedMemoryPercent(); !ok || percent < uint64(m.config.ChunkCacheMinPercent) {
			break
		}
	}
}

func (m *ChunkManager) recordWrite(number int32, bytes int64) {
	if m.config.EnableStatistics {
		m.stats.addWrite(number, bytes)
	}
}

func (m *ChunkManager) recordRead(number int32, kind readKind) {
	if m.config.EnableStatistics {
		m.stats.addRead(number, kind)
	}
}

func (m *ChunkManager) logStatistics() {
	r := m.stats.collect()
	if r.empty() {
		return
	}
	var maxChunk int32 = -1
	if last := m.GetLastChunk(); last != nil {
		maxChunk = last.header.ChunkNumber
	}
	count, used := m.pages.stats()
	m.log.Infof("maxChunk: #%d, %s, cachedChunks: %d, cachedBytes: %d", maxChunk, r, count, used)
}

// Close stops the background tasks and closes every chunk.
func (m *ChunkManager) Close() error {
	m.tasks.stopAll()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	chunks := make([]*Chunk, 0, len(m.chunks))
	for _, n := range m.sortedNumbers() {
		chunks = append(chunks, m.chunks[n])
	}
	m.mu.Unlock()

	var firstErr error
	for _, c := range chunks {
		if err := c.Close(); err != nil {
			m.log.Errorf("close chunk %s: %s", c, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.log.Infof("chunk manager closed")
	return firstErr
}
