package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/metrics"
)

func freshCacheMetrics(t *testing.T) *CacheMetrics {
	t.Helper()
	metrics.Init(prometheus.NewRegistry())
	m, ok := NewCacheMetrics().(*CacheMetrics)
	if !ok {
		t.Fatal("NewCacheMetrics did not return *CacheMetrics with metrics enabled")
	}
	return m
}

func TestCacheMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *CacheMetrics
	m.ObserveCacheHit("memory")
	m.ObserveCacheMiss("memory")
	m.ObserveLatency("memory", "get", time.Millisecond)
	m.RecordStat("memory", cache.Stat{})
	m.RecordEviction("memory", 0, 0)
}

func TestCacheMetrics_ObserveHitMiss(t *testing.T) {
	m := freshCacheMetrics(t)

	m.ObserveCacheHit("memory")
	m.ObserveCacheHit("memory")
	m.ObserveCacheMiss("memory")

	if got := testutil.ToFloat64(m.hits.WithLabelValues("memory")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.misses.WithLabelValues("memory")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestCacheMetrics_RecordStat(t *testing.T) {
	m := freshCacheMetrics(t)

	m.RecordStat("file", cache.Stat{Bytes: 512, MaxBytes: 1024, Elements: 3})

	if got := testutil.ToFloat64(m.usedBytes.WithLabelValues("file")); got != 512 {
		t.Errorf("usedBytes = %v, want 512", got)
	}
	if got := testutil.ToFloat64(m.elements.WithLabelValues("file")); got != 3 {
		t.Errorf("elements = %v, want 3", got)
	}
}

func TestCacheMetrics_RecordEviction(t *testing.T) {
	m := freshCacheMetrics(t)

	m.RecordEviction("memory", 300, 3)
	m.RecordEviction("memory", 100, 1)

	if got := testutil.ToFloat64(m.evictions.WithLabelValues("memory")); got != 4 {
		t.Errorf("evictions = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.evictBytes.WithLabelValues("memory")); got != 400 {
		t.Errorf("evictBytes = %v, want 400", got)
	}
}
