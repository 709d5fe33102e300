// Package telemetry exposes Prometheus metrics for the ledger core.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the ledger's instruments around one registry.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OutboxPublished   prometheus.Counter
	JobRunsTotal      *prometheus.CounterVec
	ReconcileBalanced prometheus.Gauge
	ReconcileTotal    prometheus.Gauge
}

// NewMetrics builds a registry with the ledger instruments plus the standard
// Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgercore",
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledgercore",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgercore",
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to the broker.",
		}),
		JobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgercore",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		ReconcileBalanced: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledgercore",
			Name:      "reconciliation_balanced",
			Help:      "1 when the last reconciliation run balanced, 0 otherwise.",
		}),
		ReconcileTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledgercore",
			Name:      "reconciliation_grand_total",
			Help:      "Signed grand total of the last reconciliation run.",
		}),
	}
}

// ObserveOperation records one operation's outcome and latency.
func (m *Metrics) ObserveOperation(operation string, err error, started time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
