// pkg/chunk/manager_test.go

package chunk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"AveMQ/pkg/meta"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, cfg *Config) (*ChunkManager, *ChunkWriter, *ChunkReader) {
	t.Helper()
	m, err := NewChunkManager(t.Name(), cfg, false)
	require.NoError(t, err)
	require.NoError(t, m.Load(decodeTestRecord))
	m.Start()
	w := NewChunkWriter(m)
	require.NoError(t, w.Open())
	return m, w, NewChunkReader(m, w)
}

func closeStream(t *testing.T, m *ChunkManager, w *ChunkWriter) {
	t.Helper()
	require.NoError(t, w.Close())
	require.NoError(t, m.Close())
}

func writeRecords(t *testing.T, w *ChunkWriter, records ...*testRecord) []int64 {
	t.Helper()
	positions := make([]int64, len(records))
	for i, r := range records {
		p, err := w.Write(r)
		require.NoError(t, err)
		positions[i] = p
	}
	return positions
}

func TestNewChunkManager(t *testing.T) {
	_, err := NewChunkManager("none", &Config{BasePath: t.TempDir()}, false)
	require.Error(t, err)
	_, err = NewChunkManager("none", &Config{ChunkDataSize: 100}, false)
	require.Error(t, err)
	m, err := NewChunkManager("memory", &Config{ChunkDataSize: 100}, true)
	require.NoError(t, err)
	require.True(t, m.IsMemory())
	require.NoError(t, m.Close())
}

func TestManagerLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, func(c *Config) { c.ChunkDataSize = 100 })
	m, w, _ := openStream(t, cfg)

	_, err := os.Stat(filepath.Join(dir, meta.FormatFileName))
	require.NoError(t, err)

	var records []*testRecord
	for i := 0; i < 5; i++ {
		records = append(records, newRecord(34, byte(i)))
	}
	positions := writeRecords(t, w, records...)
	require.Equal(t, []int64{0, 50, 100, 150, 200}, positions)
	require.Equal(t, 3, m.GetChunkCount())
	end := w.GlobalPosition()
	require.Equal(t, int64(250), end)
	closeStream(t, m, w)

	m, w, r := openStream(t, cfg)
	defer closeStream(t, m, w)
	chunks := m.GetAllChunks()
	require.Len(t, chunks, 3)
	require.True(t, chunks[0].IsCompleted())
	require.True(t, chunks[1].IsCompleted())
	require.False(t, chunks[2].IsCompleted())
	require.Equal(t, chunks[0], m.GetFirstChunk())
	require.Equal(t, chunks[2], m.GetLastChunk())
	require.Equal(t, chunks[1], m.GetChunkFor(150))
	require.Nil(t, m.GetChunkFor(300))
	require.Nil(t, m.GetChunkFor(-1))
	require.Equal(t, end, w.GlobalPosition())

	for i, p := range positions {
		got, err := r.TryReadAt(p, decodeTestRecord, false)
		require.NoError(t, err)
		requireRecord(t, records[i], p, got)
	}

	// the recovered chunk still has room for one record
	require.Equal(t, []int64{250, 300}, writeRecords(t, w, newRecord(34, 8), newRecord(34, 9)))
	require.Equal(t, int32(3), w.CurrentChunk().Header().ChunkNumber)
}

func TestManagerLoadSealedLast(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, func(c *Config) { c.ChunkDataSize = 100 })
	m, w, _ := openStream(t, cfg)
	writeRecords(t, w, newRecord(34, 1))
	require.NoError(t, w.CurrentChunk().Complete())
	closeStream(t, m, w)

	m, w, r := openStream(t, cfg)
	defer closeStream(t, m, w)
	require.Equal(t, 2, m.GetChunkCount())
	require.True(t, m.GetFirstChunk().IsCompleted())
	require.Equal(t, int64(100), w.GlobalPosition())

	got, err := r.TryReadAt(0, decodeTestRecord, false)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestManagerFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	m, w, _ := openStream(t, testConfig(t, dir, func(c *Config) { c.ChunkDataSize = 100 }))
	closeStream(t, m, w)

	m, err := NewChunkManager("mismatch", testConfig(t, dir, func(c *Config) { c.ChunkDataSize = 200 }), false)
	require.NoError(t, err)
	require.True(t, errors.Is(m.Load(decodeTestRecord), ErrBadData))
}

func TestManagerLoadMisnamedChunk(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, nil)
	c, err := CreateNew(filepath.Join(dir, "chunk-00000001"), 0, nil, cfg, false)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	m, err := NewChunkManager("misnamed", cfg, false)
	require.NoError(t, err)
	defer m.Close()
	require.True(t, errors.Is(m.Load(decodeTestRecord), ErrBadData))
	require.Zero(t, m.GetChunkCount())
}

func TestManagerLoadDuplicateChunk(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, nil)
	name := filepath.Join(dir, "chunk-00000000")
	c, err := CreateNew(name, 0, nil, cfg, false)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	// also matches the name pattern and parses as chunk #0
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk-000000000"), data, 0644))

	m, err := NewChunkManager("duplicate", cfg, false)
	require.NoError(t, err)
	defer m.Close()
	require.True(t, errors.Is(m.Load(decodeTestRecord), ErrBadData))
	require.Zero(t, m.GetChunkCount())
}

func TestManagerRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "1b4e28ba-2fa1-11d2-883f-0016d3cca427.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0644))

	m, w, _ := openStream(t, testConfig(t, dir, nil))
	defer closeStream(t, m, w)
	_, err := os.Stat(tmp)
	require.True(t, os.IsNotExist(err))
}

func TestManagerRemoveChunk(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, func(c *Config) { c.ChunkDataSize = 100 })
	m, w, r := openStream(t, cfg)
	defer closeStream(t, m, w)
	writeRecords(t, w, newRecord(34, 1), newRecord(34, 2), newRecord(34, 3))

	first := m.GetFirstChunk()
	require.True(t, m.RemoveChunk(first))
	require.False(t, m.RemoveChunk(first))
	require.Nil(t, m.GetChunk(0))
	_, err := os.Stat(first.FileName())
	require.True(t, os.IsNotExist(err))

	_, err = r.TryReadAt(0, decodeTestRecord, false)
	require.True(t, errors.Is(err, ErrChunkNotFound))
	require.NoError(t, w.Flush())
	got, err := r.TryReadAt(100, decodeTestRecord, false)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestManagerEviction(t *testing.T) {
	dir := t.TempDir()
	mem := newMemoryStub(10)
	cfg := testConfig(t, dir, func(c *Config) {
		c.ChunkDataSize = 100
		c.EnableCache = true
		c.MaxEvictPerPass = 1
		c.MemoryInfo = mem.info
	})
	m, w, r := openStream(t, cfg)
	defer closeStream(t, m, w)
	positions := writeRecords(t, w, newRecord(34, 1), newRecord(34, 2), newRecord(34, 3),
		newRecord(34, 4), newRecord(34, 5))
	chunks := m.GetAllChunks()
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		require.True(t, c.HasCachedChunk())
	}
	count, used := m.pages.stats()
	require.Equal(t, int64(3), count)
	require.Positive(t, used)

	setIdle := func(c *Chunk, d time.Duration) {
		ts := time.Now().Add(-d).UnixNano()
		c.lastActive.Store(ts)
		c.mirror.Load().lastActive.Store(ts)
	}
	setIdle(chunks[0], 2*time.Hour)
	setIdle(chunks[1], time.Hour)

	// below the low-water mark nothing is evicted
	m.uncacheChunks(nil)
	require.True(t, chunks[0].HasCachedChunk())

	mem.percent.Store(90)
	m.uncacheChunks(nil)
	require.False(t, chunks[0].HasCachedChunk())
	require.True(t, chunks[1].HasCachedChunk())
	require.True(t, chunks[2].HasCachedChunk())

	m.uncacheChunks(nil)
	require.False(t, chunks[1].HasCachedChunk())
	// the ongoing chunk keeps its mirror
	m.uncacheChunks(nil)
	require.True(t, chunks[2].HasCachedChunk())
	count, _ = m.pages.stats()
	require.Equal(t, int64(1), count)

	// recently read chunks are kept
	mem.percent.Store(10)
	require.True(t, chunks[0].TryCacheInMemory(false))
	mem.percent.Store(90)
	_, err := r.TryReadAt(positions[0], decodeTestRecord, false)
	require.NoError(t, err)
	m.uncacheChunks(nil)
	require.True(t, chunks[0].HasCachedChunk())
}

func TestManagerCacheNextChunk(t *testing.T) {
	dir := t.TempDir()
	mem := newMemoryStub(95)
	cfg := testConfig(t, dir, func(c *Config) {
		c.ChunkDataSize = 100
		c.EnableCache = true
		c.MemoryInfo = mem.info
	})
	m, w, r := openStream(t, cfg)
	defer closeStream(t, m, w)
	writeRecords(t, w, newRecord(34, 1), newRecord(34, 2), newRecord(34, 3),
		newRecord(34, 4), newRecord(34, 5))
	chunks := m.GetAllChunks()
	for _, c := range chunks {
		require.False(t, c.HasCachedChunk())
	}

	mem.percent.Store(10)
	got, err := r.TryReadAt(0, decodeTestRecord, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	// chunk 0 is cached by the read, chunk 1 by the cascade
	require.Eventually(t, chunks[0].HasCachedChunk, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, chunks[1].HasCachedChunk, 5*time.Second, 10*time.Millisecond)
	require.False(t, chunks[2].HasCachedChunk())
}

func TestManagerPreCache(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, func(c *Config) { c.ChunkDataSize = 100 })
	m, w, _ := openStream(t, cfg)
	writeRecords(t, w, newRecord(34, 1), newRecord(34, 2), newRecord(34, 3),
		newRecord(34, 4), newRecord(34, 5), newRecord(34, 6), newRecord(34, 7))
	closeStream(t, m, w)

	cfg.EnableCache = true
	cfg.PreCacheChunkCount = 2
	m, w, _ = openStream(t, cfg)
	defer closeStream(t, m, w)
	chunks := m.GetAllChunks()
	require.Len(t, chunks, 4)
	require.False(t, chunks[0].HasCachedChunk())
	require.True(t, chunks[1].HasCachedChunk())
	require.True(t, chunks[2].HasCachedChunk())
	require.False(t, chunks[3].HasCachedChunk())
}

func TestManagerStatistics(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, func(c *Config) {
		c.EnableStatistics = true
		c.StatisticsInterval = time.Hour
		c.SyncFlush = true
	})
	m, w, r := openStream(t, cfg)
	defer closeStream(t, m, w)

	positions := writeRecords(t, w, newRecord(10, 1), newRecord(20, 2))
	for _, p := range positions {
		got, err := r.TryReadAt(p, decodeTestRecord, false)
		require.NoError(t, err)
		require.NotNil(t, got)
	}

	report := m.stats.collect()
	require.Equal(t, map[int32]int64{0: 26 + 36}, report.writes)
	require.Equal(t, map[int32]int64{0: 2}, report.reads[readFile])
	m.logStatistics()
	require.True(t, m.stats.collect().empty())
}

func TestManagerMemoryMode(t *testing.T) {
	cfg := testConfig(t, "", func(c *Config) { c.ChunkDataSize = 100 })
	m, err := NewChunkManager("memory", cfg, true)
	require.NoError(t, err)
	require.NoError(t, m.Load(decodeTestRecord))
	w := NewChunkWriter(m)
	require.NoError(t, w.Open())
	r := NewChunkReader(m, w)
	defer closeStream(t, m, w)

	var records []*testRecord
	for i := 0; i < 5; i++ {
		records = append(records, newRecord(34, byte(i)))
	}
	positions := writeRecords(t, w, records...)
	require.Equal(t, 3, m.GetChunkCount())
	for i, p := range positions {
		got, err := r.TryReadAt(p, decodeTestRecord, false)
		require.NoError(t, err)
		requireRecord(t, records[i], p, got)
	}
	for _, c := range m.GetAllChunks() {
		require.True(t, c.IsMemoryChunk())
		_, err := os.Stat(c.FileName())
		require.True(t, os.IsNotExist(err))
	}
}
