package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "univ2_hedge"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	steps          prometheus.Counter
	rebalances     prometheus.Counter
	skipped        prometheus.Counter
	unhedged       prometheus.Counter
	feedReconnects prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	steps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "steps_processed_total",
		Help:      "Total number of observation steps processed.",
	})
	rebalances := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rebalances_total",
		Help:      "Total number of hedge rebalance actions applied.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "adjustments_skipped_total",
		Help:      "Total number of hedge adjustments skipped for insufficient margin.",
	})
	unhedged := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "unhedged_steps_total",
		Help:      "Total number of steps where the LP leg ran without a hedge.",
	})
	feedReconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "feed_reconnects_total",
		Help:      "Total number of market feed reconnects.",
	})

	registry.MustRegister(steps, rebalances, skipped, unhedged, feedReconnects)

	m := &Metrics{
		StepsProcessed:     promCounter{steps},
		Rebalances:         promCounter{rebalances},
		AdjustmentsSkipped: promCounter{skipped},
		UnhedgedSteps:      promCounter{unhedged},
		FeedReconnects:     promCounter{feedReconnects},
	}

	return &Prometheus{
		Metrics:        m,
		registry:       registry,
		steps:          steps,
		rebalances:     rebalances,
		skipped:        skipped,
		unhedged:       unhedged,
		feedReconnects: feedReconnects,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
