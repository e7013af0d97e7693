// pkg/chunk/config.go

package chunk

import (
	"os"
	"strings"
	"time"

	"AveMQ/pkg/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// FlushOption selects how far a flush pushes buffered bytes.
type FlushOption int8

const (
	// FlushToOS hands buffered bytes to the operating system.
	FlushToOS FlushOption = iota
	// FlushToDisk also fsyncs the chunk file.
	FlushToDisk
)

func (o FlushOption) String() string {
	if o == FlushToDisk {
		return "disk"
	}
	return "os"
}

func parseFlushOption(s string) (FlushOption, error) {
	switch strings.ToLower(s) {
	case "", "os":
		return FlushToOS, nil
	case "disk":
		return FlushToDisk, nil
	}
	return FlushToOS, errors.Errorf("unknown flush option %q", s)
}

// maxChunkFileSize is the upper bound of header + data + footer.
const maxChunkFileSize = 1 << 30

type Config struct {
	BasePath           string
	FileNamingStrategy FileNamingStrategy

	// Either ChunkDataSize or ChunkDataUnitSize x ChunkDataCount. A stream
	// configured with unit size stores fixed-size records without framing.
	ChunkDataSize     int32
	ChunkDataUnitSize int32
	ChunkDataCount    int32

	FlushInterval time.Duration
	SyncFlush     bool
	FlushOption   FlushOption

	EnableCache                 bool
	ChunkCacheMaxPercent        int
	ChunkCacheMinPercent        int
	ChunkLocalCacheSize         int
	PreCacheChunkCount          int
	ChunkInactiveTimeMaxSeconds int
	CacheLoadBandwidth          int64 // bytes per second, 0 means unlimited
	EvictInterval               time.Duration
	EvictPause                  time.Duration
	MaxEvictPerPass             int

	ChunkReaderCount     int
	ReaderDrainTimeout   time.Duration
	MaxLogRecordSize     int32
	ChunkReadBufferSize  int
	ChunkWriteBufferSize int

	EnableStatistics   bool
	StatisticsInterval time.Duration

	Logger logrus.FieldLogger
	// MemoryInfo reports total and used physical memory in bytes.
	MemoryInfo func() (total, used uint64, err error)
}

// IsFixedDataSize reports whether records are stored as fixed-size units.
func (c *Config) IsFixedDataSize() bool {
	return c.ChunkDataUnitSize > 0 && c.ChunkDataCount > 0
}

// GetChunkDataSize returns the capacity of the data region of every chunk.
func (c *Config) GetChunkDataSize() int32 {
	if c.IsFixedDataSize() {
		return c.ChunkDataUnitSize * c.ChunkDataCount
	}
	return c.ChunkDataSize
}

// Validate checks the configuration and fills defaults for unset fields.
func (c *Config) Validate() error {
	var size int64
	switch {
	case c.ChunkDataUnitSize > 0 || c.ChunkDataCount > 0:
		if c.ChunkDataUnitSize <= 0 || c.ChunkDataCount <= 0 {
			return errors.Errorf("both ChunkDataUnitSize (%d) and ChunkDataCount (%d) must be positive",
				c.ChunkDataUnitSize, c.ChunkDataCount)
		}
		size = int64(c.ChunkDataUnitSize) * int64(c.ChunkDataCount)
	case c.ChunkDataSize > 0:
		size = int64(c.ChunkDataSize)
	default:
		return errors.New("either ChunkDataSize or ChunkDataUnitSize and ChunkDataCount must be set")
	}
	if size+ChunkHeaderSize+ChunkFooterSize > maxChunkFileSize {
		return errors.Errorf("chunk file size %d exceeds %d", size+ChunkHeaderSize+ChunkFooterSize, maxChunkFileSize)
	}

	if c.FileNamingStrategy == nil {
		c.FileNamingStrategy = NewDefaultFileNamingStrategy("chunk-")
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 100 * time.Millisecond
	}
	if c.ChunkCacheMaxPercent <= 0 {
		c.ChunkCacheMaxPercent = 75
	}
	if c.ChunkCacheMinPercent <= 0 {
		c.ChunkCacheMinPercent = 40
	}
	if c.ChunkCacheMaxPercent > 100 || c.ChunkCacheMinPercent > c.ChunkCacheMaxPercent {
		return errors.Errorf("invalid cache percent range [%d, %d]", c.ChunkCacheMinPercent, c.ChunkCacheMaxPercent)
	}
	if c.ChunkLocalCacheSize < 0 {
		c.ChunkLocalCacheSize = 0
	}
	if c.ChunkInactiveTimeMaxSeconds <= 0 {
		c.ChunkInactiveTimeMaxSeconds = 20
	}
	if c.EvictInterval <= 0 {
		c.EvictInterval = time.Second
	}
	if c.EvictPause < 0 {
		c.EvictPause = 0
	} else if c.EvictPause == 0 {
		c.EvictPause = 100 * time.Millisecond
	}
	if c.MaxEvictPerPass <= 0 {
		c.MaxEvictPerPass = 10
	}
	if c.ChunkReaderCount <= 0 {
		c.ChunkReaderCount = 5
	}
	if c.ReaderDrainTimeout <= 0 {
		c.ReaderDrainTimeout = 3 * time.Second
	}
	if c.MaxLogRecordSize <= 0 {
		c.MaxLogRecordSize = 4 << 20
	}
	if c.ChunkReadBufferSize <= 0 {
		c.ChunkReadBufferSize = 8 << 10
	}
	if c.ChunkWriteBufferSize <= 0 {
		c.ChunkWriteBufferSize = 128 << 10
	}
	if c.StatisticsInterval <= 0 {
		c.StatisticsInterval = time.Second
	}
	if c.CacheLoadBandwidth < 0 {
		c.CacheLoadBandwidth = 0
	}
	if c.Logger == nil {
		c.Logger = utils.GetLogger("avemq")
	}
	if c.MemoryInfo == nil {
		c.MemoryInfo = utils.GetMemoryInfo
	}
	return nil
}

// ParseConfig reads a YAML document into a Config. Durations use the
// time.ParseDuration syntax. The result is not validated.
func ParseConfig(data []byte) (*Config, error) {
	var aux struct {
		BasePath                    string `yaml:"base_path"`
		FilePrefix                  string `yaml:"file_prefix"`
		ChunkDataSize               int32  `yaml:"chunk_data_size"`
		ChunkDataUnitSize           int32  `yaml:"chunk_data_unit_size"`
		ChunkDataCount              int32  `yaml:"chunk_data_count"`
		FlushInterval               string `yaml:"flush_interval"`
		SyncFlush                   bool   `yaml:"sync_flush"`
		FlushOption                 string `yaml:"flush_option"`
		EnableCache                 bool   `yaml:"enable_cache"`
		ChunkCacheMaxPercent        int    `yaml:"chunk_cache_max_percent"`
		ChunkCacheMinPercent        int    `yaml:"chunk_cache_min_percent"`
		ChunkLocalCacheSize         int    `yaml:"chunk_local_cache_size"`
		PreCacheChunkCount          int    `yaml:"pre_cache_chunk_count"`
		ChunkInactiveTimeMaxSeconds int    `yaml:"chunk_inactive_time_max_seconds"`
		CacheLoadBandwidth          int64  `yaml:"cache_load_bandwidth"`
		EvictInterval               string `yaml:"evict_interval"`
		MaxEvictPerPass             int    `yaml:"max_evict_per_pass"`
		ChunkReaderCount            int    `yaml:"chunk_reader_count"`
		MaxLogRecordSize            int32  `yaml:"max_log_record_size"`
		ChunkReadBufferSize         int    `yaml:"chunk_read_buffer_size"`
		ChunkWriteBufferSize        int    `yaml:"chunk_write_buffer_size"`
		EnableStatistics            bool   `yaml:"enable_statistics"`
		StatisticsInterval          string `yaml:"statistics_interval"`
	}
	if err := yaml.Unmarshal(data, &aux); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	c := &Config{
		BasePath:                    aux.BasePath,
		ChunkDataSize:               aux.ChunkDataSize,
		ChunkDataUnitSize:           aux.ChunkDataUnitSize,
		ChunkDataCount:              aux.ChunkDataCount,
		SyncFlush:                   aux.SyncFlush,
		EnableCache:                 aux.EnableCache,
		ChunkCacheMaxPercent:        aux.ChunkCacheMaxPercent,
		ChunkCacheMinPercent:        aux.ChunkCacheMinPercent,
		ChunkLocalCacheSize:         aux.ChunkLocalCacheSize,
		PreCacheChunkCount:          aux.PreCacheChunkCount,
		ChunkInactiveTimeMaxSeconds: aux.ChunkInactiveTimeMaxSeconds,
		CacheLoadBandwidth:          aux.CacheLoadBandwidth,
		MaxEvictPerPass:             aux.MaxEvictPerPass,
		ChunkReaderCount:            aux.ChunkReaderCount,
		MaxLogRecordSize:            aux.MaxLogRecordSize,
		ChunkReadBufferSize:         aux.ChunkReadBufferSize,
		ChunkWriteBufferSize:        aux.ChunkWriteBufferSize,
		EnableStatistics:            aux.EnableStatistics,
	}
	if aux.FilePrefix != "" {
		c.FileNamingStrategy = NewDefaultFileNamingStrategy(aux.FilePrefix)
	}
	var err error
	if c.FlushOption, err = parseFlushOption(aux.FlushOption); err != nil {
		return nil, err
	}
	durations := []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"flush_interval", aux.FlushInterval, &c.FlushInterval},
		{"evict_interval", aux.EvictInterval, &c.EvictInterval},
		{"statistics_interval", aux.StatisticsInterval, &c.StatisticsInterval},
	}
	for _, d := range durations {
		if d.in == "" {
			continue
		}
		if *d.out, err = time.ParseDuration(d.in); err != nil {
			return nil, errors.Wrapf(err, "parse %s", d.name)
		}
	}
	return c, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}
