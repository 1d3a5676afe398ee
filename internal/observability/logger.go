// Package observability provides structured logging, metrics and tracing.
//
// Logger wraps log/slog with service-level context fields. Metrics records
// suggestion cache activity through OpenTelemetry instruments, and Telemetry
// owns the meter and tracer providers plus their exporters.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Logger wraps slog with persistent service context.
type Logger struct {
	mu      sync.RWMutex
	inner   *slog.Logger
	service string
	fields  []slog.Attr
}

// NewLogger creates a JSON logger at DEBUG level for a given service.
// Output defaults to os.Stderr if w is nil.
func NewLogger(serviceName string, w io.Writer) *Logger {
	return NewJSONLogger(serviceName, w, "debug")
}

// NewJSONLogger creates a JSON logger filtered at the given level.
func NewJSONLogger(serviceName string, w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return &Logger{
		inner:   slog.New(handler),
		service: serviceName,
	}
}

// NewTextLogger creates a human-readable logger backed by charmbracelet/log.
// It is meant for interactive CLI commands.
func NewTextLogger(serviceName string, w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Prefix:          serviceName,
		ReportTimestamp: true,
		Formatter:       charmlog.TextFormatter,
		Level:           charmlog.Level(ParseLevel(level)),
	})
	return NewLoggerWithHandler(serviceName, handler)
}

// NewLoggerWithHandler creates a logger with a custom slog handler.
func NewLoggerWithHandler(serviceName string, h slog.Handler) *Logger {
	return &Logger{
		inner:   slog.New(h),
		service: serviceName,
	}
}

// New picks a logger implementation by format name ("json" or "text").
func New(serviceName string, w io.Writer, format, level string) *Logger {
	if strings.EqualFold(format, "text") {
		return NewTextLogger(serviceName, w, level)
	}
	return NewJSONLogger(serviceName, w, level)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewJSONLogger("discard", io.Discard, "error")
}

// ParseLevel maps a level name to a slog level. Unknown names map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fields := make([]slog.Attr, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)
	return &Logger{
		inner:   l.inner.With(slog.Any(key, value)),
		service: l.service,
		fields:  append(fields, slog.Any(key, value)),
	}
}

// attrs prepends the service name to the arguments.
func (l *Logger) attrs(msg string, args []any) (string, []any) {
	return msg, append([]any{slog.String("service", l.service)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Debug(msg, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Error(msg, args...)
}

// SuggestEvent logs a suggestion cache event (evict, cleanup, bootstrap...)
// for one tenant scope.
func (l *Logger) SuggestEvent(event, tenant, fieldType string, args ...any) {
	allArgs := append([]any{
		slog.String("service", l.service),
		slog.String("event", event),
		slog.String("household_id", tenant),
		slog.String("field_type", fieldType),
	}, args...)
	l.inner.Info("suggest", allArgs...)
}

// Request logs a completed HTTP request.
func (l *Logger) Request(method, path string, status int, args ...any) {
	allArgs := append([]any{
		slog.String("service", l.service),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
	}, args...)
	l.inner.Info("request", allArgs...)
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.inner
}

// ServiceName returns the service name associated with this logger.
func (l *Logger) ServiceName() string {
	return l.service
}
