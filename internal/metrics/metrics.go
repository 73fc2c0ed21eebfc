// Package metrics holds the Prometheus collectors of the exporter and the
// importer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medsync"

// Metrics is a set of collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived  *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	RecordsNormalized *prometheus.CounterVec
	NormalizeDuration prometheus.Histogram
	ExportSent        *prometheus.CounterVec
	ExportFailed      *prometheus.CounterVec
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "importer",
				Name:      "messages_received_total",
				Help:      "Total number of messages received",
			},
			[]string{"transport"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "importer",
				Name:      "messages_dropped_total",
				Help:      "Total number of messages dropped, by pipeline stage and error kind",
			},
			[]string{"transport", "stage", "kind"},
		),

		RecordsNormalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "importer",
				Name:      "records_normalized_total",
				Help:      "Total number of records committed to the normalized store",
			},
			[]string{"transport", "scheme"},
		),

		NormalizeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "importer",
				Name:      "normalize_duration_seconds",
				Help:      "Time spent normalizing one record",
				Buckets:   prometheus.DefBuckets,
			},
		),

		ExportSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "exporter",
				Name:      "messages_sent_total",
				Help:      "Total number of messages handed to the transport",
			},
			[]string{"transport", "scheme"},
		),

		ExportFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "exporter",
				Name:      "messages_failed_total",
				Help:      "Total number of source rows that could not be sent",
			},
			[]string{"transport", "stage"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesReceived,
		m.MessagesDropped,
		m.RecordsNormalized,
		m.NormalizeDuration,
		m.ExportSent,
		m.ExportFailed,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveNormalize records the duration of a normalization started at start.
func (m *Metrics) ObserveNormalize(start time.Time) {
	m.NormalizeDuration.Observe(time.Since(start).Seconds())
}
