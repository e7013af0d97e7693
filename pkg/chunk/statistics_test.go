// pkg/chunk/statistics_test.go

package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatisticsDeltas(t *testing.T) {
	s := newStatistics("test-statistics")
	s.addWrite(0, 100)
	s.addWrite(0, 50)
	s.addWrite(1, 10)
	s.addRead(0, readFile)
	s.addRead(0, readCached)
	s.addRead(0, readCached)

	r := s.collect()
	require.False(t, r.empty())
	require.Equal(t, map[int32]int64{0: 150, 1: 10}, r.writes)
	require.Equal(t, map[int32]int64{0: 1}, r.reads[readFile])
	require.Equal(t, map[int32]int64{0: 2}, r.reads[readCached])
	require.Empty(t, r.reads[readUnmanaged])
	require.Contains(t, r.String(), "writeBytes: {#0:150, #1:10}")

	s.addWrite(1, 5)
	r = s.collect()
	require.Equal(t, map[int32]int64{1: 5}, r.writes)
	require.Empty(t, r.reads[readCached])

	// chunk 0 did not change and was pruned by the previous collect
	_, ok := s.writes.m.Load(int32(0))
	require.False(t, ok)

	require.True(t, s.collect().empty())
}

func TestMemCache(t *testing.T) {
	c := newMemCache("test-mem-cache")
	c.cache(1, 100)
	c.cache(1, 100)
	c.cache(2, 50)
	count, used := c.stats()
	require.Equal(t, int64(2), count)
	require.Equal(t, int64(150), used)

	c.remove(1)
	c.remove(3)
	count, used = c.stats()
	require.Equal(t, int64(1), count)
	require.Equal(t, int64(50), used)
}
