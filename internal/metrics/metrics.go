// Package metrics provides Prometheus collectors for the archive server.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exposed on the metrics endpoint.
// A nil *Metrics is valid and records nothing, so callers never need to
// branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	locationUsedBytes *prometheus.GaugeVec
	auditRetries      prometheus.Counter
	auditDropped      prometheus.Counter
	httpRequests      *prometheus.CounterVec
}

// New creates and registers the archive collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bodleian",
			Name:      "operations_total",
			Help:      "Archive operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		locationUsedBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bodleian",
			Name:      "location_used_bytes",
			Help:      "Derived used-space figure per storage location.",
		}, []string{"location_id"}),
		auditRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bodleian",
			Name:      "audit_retries_total",
			Help:      "Activity log appends that needed a retry.",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bodleian",
			Name:      "audit_dropped_total",
			Help:      "Activity log entries dropped after exhausting retries.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bodleian",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.operations,
		m.locationUsedBytes,
		m.auditRetries,
		m.auditDropped,
		m.httpRequests,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation counts one archive operation with its outcome.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// SetLocationUsedBytes records the recalculated used-space figure.
func (m *Metrics) SetLocationUsedBytes(locationID, usedBytes int64) {
	if m == nil {
		return
	}
	m.locationUsedBytes.WithLabelValues(strconv.FormatInt(locationID, 10)).Set(float64(usedBytes))
}

// ObserveAuditRetry counts a failed log append entering the retry queue.
func (m *Metrics) ObserveAuditRetry() {
	if m == nil {
		return
	}
	m.auditRetries.Inc()
}

// ObserveAuditDropped counts a log entry lost after exhausting retries.
func (m *Metrics) ObserveAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// ObserveHTTPRequest counts one HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
