// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/relay_layer/internal/mode"
)

const namespace = "relay_layer"

// Metrics owns a registry and every collector the relay records into.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	relayRequests *prometheus.CounterVec

	ledgerCalls    *prometheus.CounterVec
	ledgerDuration *prometheus.HistogramVec
	ledgerRetries  *prometheus.CounterVec
	ledgerMode     prometheus.Gauge

	auditPruned prometheus.Counter
}

// New creates and registers all collectors. withRuntime adds the Go and
// process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"service", "method", "path"}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Relay requests by outcome.",
		}, []string{"outcome"}),
		ledgerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Ledger calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		ledgerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Duration of ledger calls including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 13),
		}, []string{"op"}),
		ledgerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "retries_total",
			Help:      "Retried ledger attempts.",
		}, []string{"op"}),
		ledgerMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "degraded",
			Help:      "1 while the relay serves simulated ledger results.",
		}),
		auditPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "pruned_records_total",
			Help:      "Relay audit records removed by retention.",
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.relayRequests,
		m.ledgerCalls,
		m.ledgerDuration,
		m.ledgerRetries,
		m.ledgerMode,
		m.auditPruned,
	)
	if withRuntime {
		m.Registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one finished HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	method = strings.ToUpper(method)
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordRelay counts a relay request outcome ("submitted", "simulated",
// "expired", "invalid_signature", ...).
func (m *Metrics) RecordRelay(outcome string) {
	m.relayRequests.WithLabelValues(outcome).Inc()
}

// RecordPruned counts removed audit records.
func (m *Metrics) RecordPruned(n int64) {
	if n > 0 {
		m.auditPruned.Add(float64(n))
	}
}

// ObserveLedgerCall implements ledger.Observer.
func (m *Metrics) ObserveLedgerCall(op, outcome string, elapsed time.Duration) {
	m.ledgerCalls.WithLabelValues(op, outcome).Inc()
	m.ledgerDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveLedgerRetry implements ledger.Observer.
func (m *Metrics) ObserveLedgerRetry(op string) {
	m.ledgerRetries.WithLabelValues(op).Inc()
}

// ObserveMode implements ledger.Observer.
func (m *Metrics) ObserveMode(md mode.Mode) {
	if md == mode.Degraded {
		m.ledgerMode.Set(1)
		return
	}
	m.ledgerMode.Set(0)
}
