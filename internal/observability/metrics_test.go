package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordUsage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUsage(ctx, "category", true, nil)
	m.RecordUsage(ctx, "category", false, nil)
	m.RecordUsage(ctx, "unit", false, errors.New("boom"))

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumInt64(t, findMetric(rm, "suggest.usage.total")))
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "suggest.usage.errors")))
}

func TestMetrics_RecordQuery(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordQuery(ctx, "location_path", 4, 2*time.Millisecond, nil)
	m.RecordQuery(ctx, "location_path", 0, time.Millisecond, errors.New("down"))

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumInt64(t, findMetric(rm, "suggest.query.total")))
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "suggest.query.errors")))

	hist := findMetric(rm, "suggest.query.duration_ms")
	require.NotNil(t, hist)
	h, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, h.DataPoints, 1)
	assert.Equal(t, uint64(2), h.DataPoints[0].Count)
}

func TestMetrics_EvictionsAndCleanup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEvictions(ctx, "unit", 1)
	m.RecordEvictions(ctx, "unit", 0) // Ignored.
	m.RecordCleanup(ctx, "", 3)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "suggest.evictions")))
	assert.Equal(t, int64(3), sumInt64(t, findMetric(rm, "suggest.cleanup.removed")))
}

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics()
	// Should not panic.
	m.RecordUsage(context.Background(), "unit", true, nil)
	m.RecordQuery(context.Background(), "unit", 1, time.Second, nil)
	m.RecordEvictions(context.Background(), "unit", 1)
	m.RecordCleanup(context.Background(), "unit", 1)
}

func TestTelemetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TelemetryConfig
		wantErr bool
	}{
		{"minimal", TelemetryConfig{ServiceName: "svc"}, false},
		{"missing name", TelemetryConfig{}, true},
		{"prometheus", TelemetryConfig{ServiceName: "svc", MetricsEnabled: true, MetricsExporter: "prometheus"}, false},
		{"bad metrics exporter", TelemetryConfig{ServiceName: "svc", MetricsEnabled: true, MetricsExporter: "statsd"}, true},
		{"bad tracing exporter", TelemetryConfig{ServiceName: "svc", TracingEnabled: true, TracingExporter: "jaeger"}, true},
		{"bad sample pct", TelemetryConfig{ServiceName: "svc", TracingEnabled: true, TracingExporter: "stdout", SamplePct: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTelemetry_Disabled(t *testing.T) {
	tel, err := NewTelemetry(context.Background(), TelemetryConfig{ServiceName: "svc"})
	require.NoError(t, err)
	assert.NotNil(t, tel.Meter())
	assert.NotNil(t, tel.Tracer())
	assert.Nil(t, tel.MetricsHandler())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewTelemetry_PrometheusHandler(t *testing.T) {
	ctx := context.Background()
	tel, err := NewTelemetry(ctx, TelemetryConfig{
		ServiceName:     "svc",
		MetricsEnabled:  true,
		MetricsExporter: "prometheus",
	})
	require.NoError(t, err)
	t.Cleanup(func() { tel.Shutdown(context.Background()) })

	m, err := NewMetrics(tel.Meter())
	require.NoError(t, err)
	m.RecordEvictions(ctx, "category", 2)

	require.NotNil(t, tel.MetricsHandler())
	srv := httptest.NewServer(tel.MetricsHandler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "suggest_evictions"), "scrape output: %s", body)
}

func TestNewTelemetry_StdoutTracing(t *testing.T) {
	var buf strings.Builder
	tel, err := NewTelemetry(context.Background(), TelemetryConfig{
		ServiceName:     "svc",
		TracingEnabled:  true,
		TracingExporter: "stdout",
		SamplePct:       1,
		Writer:          &buf,
	})
	require.NoError(t, err)

	_, span := tel.Tracer().Start(context.Background(), "suggest.test")
	EndSpan(span, nil)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "suggest.test")
}
