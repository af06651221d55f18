package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ashgrove/imaged/pkg/derive"
	"github.com/ashgrove/imaged/pkg/metrics"
)

// CoordinatorMetrics is the Prometheus-backed implementation of
// derive.Metrics: resolve latency broken down by which tier served the
// request (or "origin"/"error"), and single-flight join counting (spec.md
// §8 S4: "exactly 1 originals-store GET and 1 Transform call" under N
// concurrent misses).
type CoordinatorMetrics struct {
	resolveDuration   *prometheus.HistogramVec
	singleFlightJoins prometheus.Counter
}

// NewCoordinatorMetrics creates a Prometheus-backed derive.Metrics
// instance. Returns nil when metrics collection is disabled.
func NewCoordinatorMetrics() derive.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &CoordinatorMetrics{
		resolveDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "imaged_resolve_duration_seconds",
			Help: "Duration of DerivationCoordinator.Resolve by serving tier",
			Buckets: []float64{
				0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
			},
		}, []string{"hit"}),
		singleFlightJoins: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "imaged_resolve_singleflight_joins_total",
			Help: "Total resolve calls that joined an in-flight derivation rather than triggering one",
		}),
	}
}

func (m *CoordinatorMetrics) ObserveResolve(hit string, d time.Duration) {
	if m == nil {
		return
	}
	m.resolveDuration.WithLabelValues(hit).Observe(d.Seconds())
}

func (m *CoordinatorMetrics) ObserveSingleFlightJoin() {
	if m == nil {
		return
	}
	m.singleFlightJoins.Inc()
}
