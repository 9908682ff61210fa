package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.StepsProcessed.Inc()
	prom.Metrics.Rebalances.Inc()
	prom.Metrics.AdjustmentsSkipped.Inc()
	prom.Metrics.UnhedgedSteps.Inc()
	prom.Metrics.FeedReconnects.Inc()

	assertCounter(t, prom.steps, 1)
	assertCounter(t, prom.rebalances, 1)
	assertCounter(t, prom.skipped, 1)
	assertCounter(t, prom.unhedged, 1)
	assertCounter(t, prom.feedReconnects, 1)
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
