// pkg/chunk/mem_cache.go

package chunk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type memItem struct {
	atime time.Time
	size  int64
}

// memCache accounts the memory mirrors held by the chunks of a manager.
type memCache struct {
	sync.Mutex
	used  int64
	pages map[int32]memItem
	gauge prometheus.Gauge
}

func newMemCache(stream string) *memCache {
	return &memCache{
		pages: make(map[int32]memItem),
		gauge: cachedBytes.WithLabelValues(stream),
	}
}

func (c *memCache) stats() (int64, int64) {
	c.Lock()
	defer c.Unlock()
	return int64(len(c.pages)), c.used
}

func (c *memCache) cache(number int32, size int64) {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.pages[number]; ok {
		return
	}
	c.pages[number] = memItem{time.Now(), size}
	c.used += size
	c.gauge.Set(float64(c.used))
}

func (c *memCache) remove(number int32) {
	c.Lock()
	defer c.Unlock()
	if item, ok := c.pages[number]; ok {
		c.used -= item.size
		delete(c.pages, number)
		c.gauge.Set(float64(c.used))
		logger.Debugf("remove mirror of chunk #%d from cache, cached for %s", number, time.Since(item.atime))
	}
}
