package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/internal/telemetry"
	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewHTTPMetrics(mp.Meter(httpInstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/parse", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "bad log")
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/parse", strings.NewReader("{broken")),
	} {
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	requests, ok := telemetry.FindMetric(rm, "sessionparse.http.requests_total")
	require.True(t, ok, "requests counter not found")
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byStatus := map[int64]int64{}
	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value("status")
		byStatus[status.AsInt64()] += dp.Value
	}
	assert.Equal(t, int64(2), byStatus[http.StatusOK])
	assert.Equal(t, int64(1), byStatus[http.StatusUnprocessableEntity])

	duration, ok := telemetry.FindMetric(rm, "sessionparse.http.request_duration_seconds")
	require.True(t, ok, "duration histogram not found")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	_, ok = telemetry.FindMetric(rm, "sessionparse.http.request_size_bytes")
	assert.True(t, ok, "request size histogram not found")
}

func TestServer_RecordsMetricsOnMeter(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	server, err := NewServer(parser.New(parser.DefaultConfig()), zap.NewNop(), nil,
		WithMeter(tt.Meter(httpInstrumentationName)))
	require.NoError(t, err)

	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)
	_, ok := telemetry.FindMetric(rm, "sessionparse.http.requests_total")
	assert.True(t, ok)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/parse", "/api/v1/parse"},
		{"/api/v1/batch", "/api/v1/batch"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
