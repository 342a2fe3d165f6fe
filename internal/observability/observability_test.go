package observability

import (
	"context"
	"errors"
	"letta-mcp-server/internal/config"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetrics_RecordToolCall(t *testing.T) {
	m := NewMetrics()

	m.RecordToolCall("letta_job_monitor", "list", "ok", 10*time.Millisecond)
	m.RecordToolCall("letta_job_monitor", "list", "ok", 5*time.Millisecond)
	m.RecordToolCall("letta_job_monitor", "get", "NOT_FOUND", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("letta_job_monitor", "list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("letta_job_monitor", "get", "NOT_FOUND")))
}

func TestMetrics_RecordBulkItems(t *testing.T) {
	m := NewMetrics()
	m.RecordBulkItems("letta_tool_manager", "bulk_attach", 3, 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.bulkItemsTotal.WithLabelValues("letta_tool_manager", "bulk_attach", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bulkItemsTotal.WithLabelValues("letta_tool_manager", "bulk_attach", "failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordToolCall("t", "o", "ok", time.Second)
		m.RecordBulkItems("t", "o", 1, 1)
		m.RecordHTTPRequest("GET", "/health", "200", time.Second)
		m.RecordRateLimited("t")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest(http.MethodGet, "/health", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "letta_mcp_http_requests_total")
}

func TestNewTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TelemetryConfig
		wantErr bool
	}{
		{name: "disabled", cfg: config.TelemetryConfig{Enabled: false}},
		{name: "none exporter", cfg: config.TelemetryConfig{Enabled: true, Exporter: "none"}},
		{name: "stdout exporter", cfg: config.TelemetryConfig{Enabled: true, Exporter: "stdout"}},
		{name: "unknown exporter", cfg: config.TelemetryConfig{Enabled: true, Exporter: "zipkin"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracing, err := NewTracing(context.Background(), tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tracing.Tracer())
			assert.NoError(t, tracing.Shutdown(context.Background()))
		})
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := provider.Tracer("test").Start(context.Background(), "dispatch")
	EndSpan(span, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
}
