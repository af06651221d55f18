package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ashgrove/imaged/pkg/metrics"
)

func freshCoordinatorMetrics(t *testing.T) *CoordinatorMetrics {
	t.Helper()
	metrics.Init(prometheus.NewRegistry())
	m, ok := NewCoordinatorMetrics().(*CoordinatorMetrics)
	if !ok {
		t.Fatal("NewCoordinatorMetrics did not return *CoordinatorMetrics with metrics enabled")
	}
	return m
}

func TestCoordinatorMetrics_ObserveResolve(t *testing.T) {
	m := freshCoordinatorMetrics(t)

	m.ObserveResolve("memory", 2*time.Millisecond)

	count := testutil.CollectAndCount(m.resolveDuration)
	if count != 1 {
		t.Errorf("resolveDuration series count = %d, want 1", count)
	}
}

func TestCoordinatorMetrics_SingleFlightJoins(t *testing.T) {
	m := freshCoordinatorMetrics(t)

	m.ObserveSingleFlightJoin()
	m.ObserveSingleFlightJoin()
	m.ObserveSingleFlightJoin()

	if got := testutil.ToFloat64(m.singleFlightJoins); got != 3 {
		t.Errorf("singleFlightJoins = %v, want 3", got)
	}
}

func TestCoordinatorMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *CoordinatorMetrics
	m.ObserveResolve("memory", time.Millisecond)
	m.ObserveSingleFlightJoin()
}
