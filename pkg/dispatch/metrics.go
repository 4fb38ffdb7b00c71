// metrics.go exposes Prometheus metrics for dispatching and sending.

package dispatch

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes recorded by Metrics.
const (
	OutcomeSubmitted = "submitted"
	OutcomeExcluded  = "excluded"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics holds the Prometheus collectors for a Dispatcher and its clients.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatchTotal  *prometheus.CounterVec
	clientsCreated prometheus.Counter
	clientsCached  prometheus.Gauge
	sendsTotal     *prometheus.CounterVec
	sendDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates the metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashdispatch_dispatch_total",
				Help: "Total number of dispatch calls by outcome",
			},
			[]string{"outcome"},
		),

		clientsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crashdispatch_clients_created_total",
				Help: "Total number of report clients built by the client factory",
			},
		),

		clientsCached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crashdispatch_clients_cached",
				Help: "Number of report clients currently bound to a worker",
			},
		),

		sendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashdispatch_sends_total",
				Help: "Total number of report sends by status",
			},
			[]string{"status"},
		),

		sendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crashdispatch_send_duration_seconds",
				Help:    "Report send latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.dispatchTotal,
		m.clientsCreated,
		m.clientsCached,
		m.sendsTotal,
		m.sendDuration,
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDispatch counts a dispatch call by outcome.
func (m *Metrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

// RecordClientCreated counts a factory invocation. cached is false for
// clients built for calls without a worker identity.
func (m *Metrics) RecordClientCreated(cached bool) {
	if m == nil {
		return
	}
	m.clientsCreated.Inc()
	if cached {
		m.clientsCached.Inc()
	}
}

// RecordClientReleased decrements the cached client gauge.
func (m *Metrics) RecordClientReleased() {
	if m == nil {
		return
	}
	m.clientsCached.Dec()
}

// RecordSend records one completed send.
func (m *Metrics) RecordSend(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.sendsTotal.WithLabelValues(status).Inc()
	m.sendDuration.Observe(elapsed.Seconds())
}
