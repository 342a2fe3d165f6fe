// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for tool dispatch and the HTTP transport.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "letta_mcp"

// Metrics owns a private registry so several servers (and tests) can live
// in one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	bulkItemsTotal   *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	rateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers every collector
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool operations dispatched",
			},
			[]string{"tool", "operation", "status"},
		),
		toolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool", "operation"},
		),
		bulkItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_items_total",
				Help:      "Items processed by bulk operations",
			},
			[]string{"tool", "operation", "result"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		rateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Tool calls rejected by the rate limiter",
			},
			[]string{"tool"},
		),
	}

	m.registry.MustRegister(
		m.toolCallsTotal,
		m.toolCallDuration,
		m.bulkItemsTotal,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.rateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordToolCall records one dispatched operation. status is "ok" or an
// error code.
func (m *Metrics) RecordToolCall(tool, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, operation, status).Inc()
	m.toolCallDuration.WithLabelValues(tool, operation).Observe(duration.Seconds())
}

// RecordBulkItems records per-item results of a bulk operation
func (m *Metrics) RecordBulkItems(tool, operation string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.bulkItemsTotal.WithLabelValues(tool, operation, "succeeded").Add(float64(succeeded))
	m.bulkItemsTotal.WithLabelValues(tool, operation, "failed").Add(float64(failed))
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRateLimited counts a call rejected before dispatch
func (m *Metrics) RecordRateLimited(tool string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(tool).Inc()
}
