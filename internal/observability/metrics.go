// Package observability holds the Prometheus metrics exposed by watch mode.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the health watcher.
type Metrics struct {
	ProbesTotal         *prometheus.CounterVec // labels: outcome={success,failure}
	RestartsTotal       *prometheus.CounterVec // labels: outcome={success,failure}
	ConsecutiveFailures prometheus.Gauge
	ServiceUp           prometheus.Gauge
	ProbeDuration       prometheus.Histogram
}

// NewMetrics creates and registers all watcher metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProbesTotal,
		m.RestartsTotal,
		m.ConsecutiveFailures,
		m.ServiceUp,
		m.ProbeDuration,
	)
	return m
}

// NewUnregisteredMetrics creates the metrics without registering them, for
// tests that build several watchers in one process.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensormap",
			Name:      "health_probes_total",
			Help:      "Total health probes against the service endpoint.",
		}, []string{"outcome"}),
		RestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensormap",
			Name:      "watch_restarts_total",
			Help:      "Total restarts triggered by the health watcher.",
		}, []string{"outcome"}),
		ConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensormap",
			Name:      "consecutive_probe_failures",
			Help:      "Current run of failed probes since the last success.",
		}),
		ServiceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensormap",
			Name:      "service_up",
			Help:      "1 when the last probe succeeded, 0 otherwise.",
		}),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sensormap",
			Name:      "probe_duration_seconds",
			Help:      "Duration of health probe requests.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
