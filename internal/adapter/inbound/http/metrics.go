// Package http provides the HTTP transport for the decision service.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for routewarden.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	PolicyReloads    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
// The policies and cacheHits callbacks let gauges read live service state
// without the service importing prometheus.
func NewMetrics(reg prometheus.Registerer, policies func() float64, cacheHits func() float64) *Metrics {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "routewarden",
			Name:      "policies_loaded",
			Help:      "Number of policies in the active table",
		},
		policies,
	)
	promauto.With(reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "routewarden",
			Name:      "decision_cache_hits_total",
			Help:      "Total decision cache hits",
		},
		cacheHits,
	)

	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routewarden",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "routewarden",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routewarden",
				Name:      "decisions_total",
				Help:      "Total guard decisions by outcome reason",
			},
			[]string{"reason"},
		),
		DecisionDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "routewarden",
				Name:      "decision_duration_seconds",
				Help:      "Guard decision evaluation duration in seconds",
				Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
			},
		),
		PolicyReloads: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "routewarden",
				Name:      "policy_reloads_total",
				Help:      "Total successful policy table reloads",
			},
		),
	}
}
