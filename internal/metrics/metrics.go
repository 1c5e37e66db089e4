// Package metrics exposes Prometheus counters for backup/restore runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the run-level collectors.
type Metrics struct {
	registry    *prometheus.Registry
	runsTotal   *prometheus.CounterVec
	buckets     *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "influxvault_runs_total",
			Help: "Completed runs by operation and outcome.",
		}, []string{"operation", "outcome"}),
		buckets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "influxvault_buckets_total",
			Help: "Processed buckets by operation and outcome.",
		}, []string{"operation", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "influxvault_run_duration_seconds",
			Help:    "Run duration by operation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"operation"}),
	}

	m.registry.MustRegister(m.runsTotal, m.buckets, m.runDuration)
	return m
}

// ObserveRun records the outcome of one completed run.
func (m *Metrics) ObserveRun(operation string, ok bool, duration time.Duration, succeeded, failed int) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.runsTotal.WithLabelValues(operation, outcome).Inc()
	m.buckets.WithLabelValues(operation, "succeeded").Add(float64(succeeded))
	m.buckets.WithLabelValues(operation, "failed").Add(float64(failed))
	m.runDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
