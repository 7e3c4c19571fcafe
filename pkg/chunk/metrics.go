package chunk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for chunk loading. A nil *Metrics records
// nothing.
type Metrics struct {
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	decompressedBytes   *prometheus.CounterVec
	decompressedChunks  *prometheus.CounterVec
	decompressDurations *prometheus.HistogramVec
}

// NewMetrics creates chunk metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frost",
			Subsystem: "chunk",
			Name:      "cache_hits_total",
			Help:      "Total number of chunk loads served from the single-slot cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frost",
			Subsystem: "chunk",
			Name:      "cache_misses_total",
			Help:      "Total number of chunk loads that required decompression.",
		}),
		decompressedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frost",
			Subsystem: "chunk",
			Name:      "decompressed_bytes_total",
			Help:      "Total number of uncompressed bytes produced, by codec.",
		}, []string{"compression"}),
		decompressedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frost",
			Subsystem: "chunk",
			Name:      "decompressed_chunks_total",
			Help:      "Total number of chunks decompressed, by codec.",
		}, []string{"compression"}),
		decompressDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frost",
			Subsystem: "chunk",
			Name:      "decompress_duration_seconds",
			Help:      "Chunk decompression duration in seconds, by codec.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"compression"}),
	}
	if reg != nil {
		reg.MustRegister(m.cacheHits, m.cacheMisses, m.decompressedBytes, m.decompressedChunks, m.decompressDurations)
	}
	return m
}

func (m *Metrics) hit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) miss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) decompressed(compression string, n int, d time.Duration) {
	if m == nil {
		return
	}
	m.decompressedBytes.WithLabelValues(compression).Add(float64(n))
	m.decompressedChunks.WithLabelValues(compression).Inc()
	m.decompressDurations.WithLabelValues(compression).Observe(d.Seconds())
}
