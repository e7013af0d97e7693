// pkg/chunk/statistics.go

package chunk

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type readKind int

const (
	readFile readKind = iota
	readUnmanaged
	readCached
	readKinds
)

func (k readKind) String() string {
	switch k {
	case readFile:
		return "file"
	case readUnmanaged:
		return "unmanaged"
	case readCached:
		return "cached"
	}
	return "unknown"
}

// counter keeps the value seen by the last report next to the current one.
type counter struct {
	prev, cur int64
}

func (c *counter) add(n int64) {
	atomic.AddInt64(&c.cur, n)
}

// delta returns the growth since the previous call.
func (c *counter) delta() (int64, int64) {
	cur := atomic.LoadInt64(&c.cur)
	prev := atomic.SwapInt64(&c.prev, cur)
	return cur - prev, cur
}

type counters struct {
	m sync.Map // chunk number -> *counter
}

func (cs *counters) add(number int32, n int64) {
	v, ok := cs.m.Load(number)
	if !ok {
		v, _ = cs.m.LoadOrStore(number, new(counter))
	}
	v.(*counter).add(n)
}

// collect returns the non-zero deltas per chunk and forgets chunks that did
// not change since the previous collect.
func (cs *counters) collect() map[int32]int64 {
	deltas := make(map[int32]int64)
	cs.m.Range(func(k, v interface{}) bool {
		c := v.(*counter)
		d, cur := c.delta()
		if d != 0 {
			deltas[k.(int32)] = d
			return true
		}
		cs.m.Delete(k)
		if atomic.LoadInt64(&c.cur) != cur {
			// raced with add, keep the counter
			cs.m.LoadOrStore(k, c)
		}
		return true
	})
	return deltas
}

type statistics struct {
	writes   counters
	reads    [readKinds]counters
	wbytes   prometheus.Counter
	rcounter [readKinds]prometheus.Counter
}

func newStatistics(stream string) *statistics {
	s := &statistics{wbytes: writeBytes.WithLabelValues(stream)}
	for k := readKind(0); k < readKinds; k++ {
		s.rcounter[k] = readCount.WithLabelValues(stream, k.String())
	}
	return s
}

func (s *statistics) addWrite(number int32, bytes int64) {
	s.writes.add(number, bytes)
	s.wbytes.Add(float64(bytes))
}

func (s *statistics) addRead(number int32, kind readKind) {
	s.reads[kind].add(number, 1)
	s.rcounter[kind].Inc()
}

type report struct {
	writes map[int32]int64
	reads  [readKinds]map[int32]int64
}

func (s *statistics) collect() *report {
	r := &report{writes: s.writes.collect()}
	for k := readKind(0); k < readKinds; k++ {
		r.reads[k] = s.reads[k].collect()
	}
	return r
}

func (r *report) empty() bool {
	if len(r.writes) > 0 {
		return false
	}
	for _, m := range r.reads {
		if len(m) > 0 {
			return false
		}
	}
	return true
}

func formatDeltas(m map[int32]int64) string {
	if len(m) == 0 {
		return "{}"
	}
	numbers := make([]int32, 0, len(m))
	for n := range m {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = fmt.Sprintf("#%d:%d", n, m[n])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (r *report) String() string {
	return fmt.Sprintf("writeBytes: %s, fileReads: %s, unmanagedReads: %s, cachedReads: %s",
		formatDeltas(r.writes), formatDeltas(r.reads[readFile]),
		formatDeltas(r.reads[readUnmanaged]), formatDeltas(r.reads[readCached]))
}
