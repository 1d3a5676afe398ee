package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records suggestion cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: recording is best-effort and must not panic.
type Metrics interface {
	// RecordUsage records one record_usage call; created reports a new entry.
	RecordUsage(ctx context.Context, fieldType string, created bool, err error)

	// RecordQuery records one suggestion query with its result size.
	RecordQuery(ctx context.Context, fieldType string, results int, duration time.Duration, err error)

	// RecordEvictions records entries removed to enforce the size cap.
	RecordEvictions(ctx context.Context, fieldType string, n int)

	// RecordCleanup records entries removed by low-frequency cleanup.
	RecordCleanup(ctx context.Context, fieldType string, n int)
}

type metricsImpl struct {
	usageCount   metric.Int64Counter
	usageErrors  metric.Int64Counter
	queryCount   metric.Int64Counter
	queryErrors  metric.Int64Counter
	queryResults metric.Int64Histogram
	durationHist metric.Float64Histogram
	evictions    metric.Int64Counter
	cleaned      metric.Int64Counter
}

// NewMetrics creates the suggestion instruments on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.usageCount, err = meter.Int64Counter(
		"suggest.usage.total",
		metric.WithDescription("Total number of recorded field usages"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.usageErrors, err = meter.Int64Counter(
		"suggest.usage.errors",
		metric.WithDescription("Total number of failed usage recordings"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.queryCount, err = meter.Int64Counter(
		"suggest.query.total",
		metric.WithDescription("Total number of suggestion queries"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.queryErrors, err = meter.Int64Counter(
		"suggest.query.errors",
		metric.WithDescription("Total number of failed suggestion queries"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.queryResults, err = meter.Int64Histogram(
		"suggest.query.results",
		metric.WithDescription("Number of suggestions returned per query"),
		metric.WithUnit("{suggestion}"),
	); err != nil {
		return nil, err
	}
	if m.durationHist, err = meter.Float64Histogram(
		"suggest.query.duration_ms",
		metric.WithDescription("Suggestion query duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.evictions, err = meter.Int64Counter(
		"suggest.evictions",
		metric.WithDescription("Entries evicted to enforce the per-scope cap"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}
	if m.cleaned, err = meter.Int64Counter(
		"suggest.cleanup.removed",
		metric.WithDescription("Entries removed by low-frequency cleanup"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func fieldAttr(fieldType string) attribute.KeyValue {
	if fieldType == "" {
		fieldType = "all"
	}
	return attribute.String("field_type", fieldType)
}

func (m *metricsImpl) RecordUsage(ctx context.Context, fieldType string, created bool, err error) {
	opt := metric.WithAttributes(fieldAttr(fieldType))
	if err != nil {
		m.usageErrors.Add(ctx, 1, opt)
		return
	}
	m.usageCount.Add(ctx, 1, metric.WithAttributes(
		fieldAttr(fieldType),
		attribute.Bool("created", created),
	))
}

func (m *metricsImpl) RecordQuery(ctx context.Context, fieldType string, results int, duration time.Duration, err error) {
	opt := metric.WithAttributes(fieldAttr(fieldType))
	m.queryCount.Add(ctx, 1, opt)
	if err != nil {
		m.queryErrors.Add(ctx, 1, opt)
	}
	m.queryResults.Record(ctx, int64(results), opt)
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordEvictions(ctx context.Context, fieldType string, n int) {
	if n <= 0 {
		return
	}
	m.evictions.Add(ctx, int64(n), metric.WithAttributes(fieldAttr(fieldType)))
}

func (m *metricsImpl) RecordCleanup(ctx context.Context, fieldType string, n int) {
	if n <= 0 {
		return
	}
	m.cleaned.Add(ctx, int64(n), metric.WithAttributes(fieldAttr(fieldType)))
}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics { return noopMetrics{} }

type noopMetrics struct{}

func (noopMetrics) RecordUsage(context.Context, string, bool, error)                {}
func (noopMetrics) RecordQuery(context.Context, string, int, time.Duration, error) {}
func (noopMetrics) RecordEvictions(context.Context, string, int)                    {}
func (noopMetrics) RecordCleanup(context.Context, string, int)                      {}
