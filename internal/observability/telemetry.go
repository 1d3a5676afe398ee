package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName string
	Version     string

	MetricsEnabled  bool
	MetricsExporter string // prometheus|stdout|none

	TracingEnabled  bool
	TracingExporter string  // stdout|none
	SamplePct       float64 // 0.0-1.0

	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
}

var validMetricsExporters = map[string]bool{
	"prometheus": true,
	"stdout":     true,
	"none":       true,
	"":           true,
}

var validTracingExporters = map[string]bool{
	"stdout": true,
	"none":   true,
	"":       true,
}

// Validate validates the configuration.
func (c TelemetryConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	if c.MetricsEnabled && !validMetricsExporters[c.MetricsExporter] {
		return fmt.Errorf("unknown metrics exporter: %q", c.MetricsExporter)
	}
	if c.TracingEnabled {
		if !validTracingExporters[c.TracingExporter] {
			return fmt.Errorf("unknown tracing exporter: %q", c.TracingExporter)
		}
		if c.SamplePct < 0 || c.SamplePct > 1.0 {
			return fmt.Errorf("sample percentage must be between 0.0 and 1.0, got: %f", c.SamplePct)
		}
	}
	return nil
}

// Telemetry owns the meter and tracer providers for the process.
type Telemetry struct {
	meter          metric.Meter
	tracer         trace.Tracer
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metricsHandler http.Handler
}

// NewTelemetry builds providers for the configured exporters. Disabled
// subsystems fall back to no-op implementations.
func NewTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t := &Telemetry{}

	if cfg.MetricsEnabled && cfg.MetricsExporter != "none" && cfg.MetricsExporter != "" {
		if err := t.setupMetrics(cfg, res); err != nil {
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
	} else {
		t.meter = metricnoop.NewMeterProvider().Meter("noop")
	}

	if cfg.TracingEnabled && cfg.TracingExporter == "stdout" {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		t.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplePct))),
		)
		t.tracer = t.tracerProvider.Tracer(cfg.ServiceName)
	} else {
		t.tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}

	return t, nil
}

func (t *Telemetry) setupMetrics(cfg TelemetryConfig, res *resource.Resource) error {
	var reader sdkmetric.Reader
	switch cfg.MetricsExporter {
	case "prometheus":
		reg := prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return err
		}
		reader = exp
		t.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return err
		}
		reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(time.Minute))
	}

	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	t.meter = t.meterProvider.Meter(cfg.ServiceName)
	return nil
}

// Meter returns the configured meter.
func (t *Telemetry) Meter() metric.Meter { return t.meter }

// Tracer returns the configured tracer.
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// MetricsHandler returns the Prometheus scrape handler, or nil when the
// prometheus exporter is not in use.
func (t *Telemetry) MetricsHandler() http.Handler { return t.metricsHandler }

// Shutdown flushes and stops all providers. It returns the first error.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() trace.Tracer {
	return tracenoop.NewTracerProvider().Tracer("noop")
}

// EndSpan ends the span and records the error status if present.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
