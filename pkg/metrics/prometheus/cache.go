// Package prometheus implements cache.Metrics and derive.Metrics on top
// of github.com/prometheus/client_golang, registered against the shared
// registry in pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/metrics"
)

// CacheMetrics is the Prometheus-backed implementation of cache.Metrics,
// shared across every cache level (label "level" distinguishes them).
type CacheMetrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	usedBytes  *prometheus.GaugeVec
	maxBytes   *prometheus.GaugeVec
	elements   *prometheus.GaugeVec
	evictions  *prometheus.CounterVec
	evictBytes *prometheus.CounterVec
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics instance.
// Returns nil when metrics collection is disabled, which every cache
// level treats as "record nothing".
func NewCacheMetrics() cache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &CacheMetrics{
		hits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "imaged_cache_hits_total",
			Help: "Total cache hits per level",
		}, []string{"level"}),
		misses: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "imaged_cache_misses_total",
			Help: "Total cache misses per level",
		}, []string{"level"}),
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "imaged_cache_operation_duration_seconds",
			Help: "Duration of cache level operations",
			Buckets: []float64{
				0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1,
			},
		}, []string{"level", "op"}),
		usedBytes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "imaged_cache_used_bytes",
			Help: "Bytes currently held by a cache level",
		}, []string{"level"}),
		maxBytes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "imaged_cache_max_bytes",
			Help: "Configured byte capacity of a cache level (0 = unlimited)",
		}, []string{"level"}),
		elements: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "imaged_cache_elements",
			Help: "Entry count currently held by a cache level",
		}, []string{"level"}),
		evictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "imaged_cache_evictions_total",
			Help: "Total entries evicted per level",
		}, []string{"level"}),
		evictBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "imaged_cache_eviction_bytes_total",
			Help: "Total bytes freed by eviction per level",
		}, []string{"level"}),
	}
}

func (m *CacheMetrics) ObserveCacheHit(level string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(level).Inc()
}

func (m *CacheMetrics) ObserveCacheMiss(level string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(level).Inc()
}

func (m *CacheMetrics) ObserveLatency(level, op string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(level, op).Observe(d.Seconds())
}

func (m *CacheMetrics) RecordStat(level string, stat cache.Stat) {
	if m == nil {
		return
	}
	m.usedBytes.WithLabelValues(level).Set(float64(stat.Bytes))
	m.maxBytes.WithLabelValues(level).Set(float64(stat.MaxBytes))
	m.elements.WithLabelValues(level).Set(float64(stat.Elements))
}

func (m *CacheMetrics) RecordEviction(level string, freedBytes int64, freedElements int64) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(level).Add(float64(freedElements))
	m.evictBytes.WithLabelValues(level).Add(float64(freedBytes))
}
