// Package metrics owns the process-wide Prometheus registry. Concrete
// metric sets live in pkg/metrics/prometheus; this package only tracks
// whether metrics collection is enabled and hands out the shared
// registry, so cache and coordinator constructors can ask for a
// cache.Metrics/derive.Metrics without importing prometheus directly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// Init turns on metrics collection against reg. Passing a nil registry
// creates a fresh one.
func Init(reg *prometheus.Registry) *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	registry = reg
	enabled = true
	return registry
}

// IsEnabled reports whether Init has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the shared registry, initialising a default one on
// first use if Init was never called explicitly.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}
