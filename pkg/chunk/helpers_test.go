// pkg/chunk/helpers_test.go

package chunk

import (
	"encoding/binary"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// testRecord is stored as its global position followed by the body.
type testRecord struct {
	position int64
	body     []byte
}

func (r *testRecord) WriteTo(position int64, w io.Writer) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(position))
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	_, err := w.Write(r.body)
	return err
}

func decodeTestRecord(data []byte) (LogRecord, error) {
	if len(data) < 8 {
		return nil, errors.New("short record")
	}
	empty := true
	for _, b := range data {
		if b != 0 {
			empty = false
			break
		}
	}
	if empty {
		return nil, errors.New("empty record")
	}
	body := make([]byte, len(data)-8)
	copy(body, data[8:])
	return &testRecord{position: int64(binary.LittleEndian.Uint64(data)), body: body}, nil
}

// newRecord returns a record with a body of n bytes, its payload is n+8 bytes.
func newRecord(n int, seed byte) *testRecord {
	body := make([]byte, n)
	for i := range body {
		body[i] = seed + byte(i)
	}
	return &testRecord{body: body}
}

// memoryStub reports a fixed percent of used memory out of 100 GiB.
type memoryStub struct {
	percent atomic.Int64
}

func newMemoryStub(percent int64) *memoryStub {
	m := &memoryStub{}
	m.percent.Store(percent)
	return m
}

func (m *memoryStub) info() (uint64, uint64, error) {
	const total = 100 << 30
	return total, uint64(m.percent.Load()) * (total / 100), nil
}

func testConfig(t *testing.T, dir string, mod func(*Config)) *Config {
	cfg := &Config{
		BasePath:           dir,
		ChunkDataSize:      1024,
		ChunkReaderCount:   2,
		ReaderDrainTimeout: time.Second,
		EvictInterval:      time.Hour,
		EvictPause:         time.Millisecond,
		MemoryInfo:         newMemoryStub(10).info,
	}
	if mod != nil {
		mod(cfg)
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func requireRecord(t *testing.T, expected *testRecord, position int64, got LogRecord) {
	t.Helper()
	require.NotNil(t, got)
	r := got.(*testRecord)
	require.Equal(t, position, r.position)
	require.Equal(t, expected.body, r.body)
}
