// pkg/chunk/config_test.go

package chunk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	c := &Config{}
	require.Error(t, c.Validate())

	c = &Config{ChunkDataSize: 1 << 20}
	require.NoError(t, c.Validate())
	require.False(t, c.IsFixedDataSize())
	require.Equal(t, int32(1<<20), c.GetChunkDataSize())
	require.Equal(t, 100*time.Millisecond, c.FlushInterval)
	require.Equal(t, 5, c.ChunkReaderCount)
	require.Equal(t, int32(4<<20), c.MaxLogRecordSize)
	require.NotNil(t, c.FileNamingStrategy)
	require.NotNil(t, c.Logger)
	require.NotNil(t, c.MemoryInfo)

	c = &Config{ChunkDataUnitSize: 16, ChunkDataCount: 4}
	require.NoError(t, c.Validate())
	require.True(t, c.IsFixedDataSize())
	require.Equal(t, int32(64), c.GetChunkDataSize())

	c = &Config{ChunkDataUnitSize: 16}
	require.Error(t, c.Validate())

	c = &Config{ChunkDataSize: 1<<30 - 200}
	require.Error(t, c.Validate())
	c = &Config{ChunkDataSize: 1<<30 - ChunkHeaderSize - ChunkFooterSize}
	require.NoError(t, c.Validate())

	c = &Config{ChunkDataSize: 100, ChunkCacheMinPercent: 80, ChunkCacheMaxPercent: 60}
	require.Error(t, c.Validate())
}

func TestParseConfig(t *testing.T) {
	doc := `
base_path: /var/lib/avemq/orders
file_prefix: orders-
chunk_data_size: 268435456
flush_interval: 50ms
flush_option: disk
enable_cache: true
chunk_cache_max_percent: 80
chunk_cache_min_percent: 50
chunk_local_cache_size: 1000
pre_cache_chunk_count: 2
chunk_reader_count: 8
cache_load_bandwidth: 104857600
enable_statistics: true
statistics_interval: 5s
`
	c, err := ParseConfig([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.Equal(t, "/var/lib/avemq/orders", c.BasePath)
	require.Equal(t, int32(256<<20), c.ChunkDataSize)
	require.Equal(t, 50*time.Millisecond, c.FlushInterval)
	require.Equal(t, FlushToDisk, c.FlushOption)
	require.True(t, c.EnableCache)
	require.Equal(t, 80, c.ChunkCacheMaxPercent)
	require.Equal(t, 50, c.ChunkCacheMinPercent)
	require.Equal(t, 1000, c.ChunkLocalCacheSize)
	require.Equal(t, 2, c.PreCacheChunkCount)
	require.Equal(t, 8, c.ChunkReaderCount)
	require.Equal(t, int64(100<<20), c.CacheLoadBandwidth)
	require.Equal(t, 5*time.Second, c.StatisticsInterval)
	require.Equal(t, "/x/orders-00000001", c.FileNamingStrategy.GetFileNameFor("/x", 1))

	_, err = ParseConfig([]byte("flush_option: never\nchunk_data_size: 10\n"))
	require.Error(t, err)
	_, err = ParseConfig([]byte("flush_interval: soon\n"))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avemq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_data_unit_size: 12\nchunk_data_count: 1000\n"), 0644))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.Equal(t, int32(12000), c.GetChunkDataSize())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
