// pkg/chunk/metrics.go

package chunk

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "avemq"
	subsystem = "chunk"
)

var (
	writeBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_bytes_total",
			Help:      "Bytes appended to chunks. Broken down by stream.",
		},
		[]string{"stream"},
	)

	readCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_total",
			Help:      "Records read from chunks. Broken down by stream and the tier that served the read.",
		},
		[]string{"stream", "kind"},
	)

	cachedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cached_bytes",
			Help:      "Bytes held by memory mirrors of completed chunks. Broken down by stream.",
		},
		[]string{"stream"},
	)
)

var register sync.Once
var Registry *prometheus.Registry

// RegisterMetrics registers the chunk metrics into Registry. This is always
// called only once.
func RegisterMetrics() *prometheus.Registry {
	register.Do(func() {
		Registry = prometheus.NewRegistry()
		Registry.MustRegister(writeBytes, readCount, cachedBytes)
	})
	return Registry
}
