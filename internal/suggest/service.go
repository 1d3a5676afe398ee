package suggest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/homestock/homestock/internal/observability"
)

const (
	DefaultMaxCacheSize          = 100
	DefaultMinFrequencyThreshold = 2
	DefaultLimit                 = 10
	DefaultTopValues             = 20
)

// Service is the LFU suggestion cache. It is safe for concurrent use; all
// shared state lives in the Store.
type Service struct {
	store        Store
	maxCacheSize int
	minFrequency int
	defaultLimit int
	topValues    int
	log          *observability.Logger
	metrics      observability.Metrics
	tracer       trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithMaxCacheSize caps the number of entries per (tenant, field type).
func WithMaxCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCacheSize = n
		}
	}
}

// WithMinFrequencyThreshold sets the default cleanup threshold.
func WithMinFrequencyThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minFrequency = n
		}
	}
}

// WithDefaultLimit sets the result size used when a query gives no limit.
func WithDefaultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithTopValues sets how many entries GetStatistics reports.
func WithTopValues(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topValues = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New creates a Service over the given store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		maxCacheSize: DefaultMaxCacheSize,
		minFrequency: DefaultMinFrequencyThreshold,
		defaultLimit: DefaultLimit,
		topValues:    DefaultTopValues,
		log:          observability.Discard(),
		metrics:      observability.NoopMetrics(),
		tracer:       observability.NoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxCacheSize returns the per-scope entry cap.
func (s *Service) MaxCacheSize() int { return s.maxCacheSize }

func (s *Service) startSpan(ctx context.Context, op string, tenant TenantID, field FieldType) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "suggest."+op, trace.WithAttributes(
		attribute.String("household_id", string(tenant)),
		attribute.String("field_type", string(field)),
	))
}

func checkScope(tenant TenantID, field FieldType) error {
	if tenant == "" {
		return ErrInvalidTenant
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFieldType, string(field))
	}
	return nil
}

// RecordUsage counts one use of value for the tenant's field. A blank value
// is rejected with ErrInvalidValue before the store is touched. When the
// value is new and the scope overflows the cap, the least valuable entries
// are evicted before returning.
func (s *Service) RecordUsage(ctx context.Context, tenant TenantID, field FieldType, value string) (entry Entry, err error) {
	ctx, span := s.startSpan(ctx, "RecordUsage", tenant, field)
	defer func() { observability.EndSpan(span, err) }()

	if err := checkScope(tenant, field); err != nil {
		return Entry{}, err
	}
	value = normalizeValue(value)
	if value == "" {
		return Entry{}, ErrInvalidValue
	}

	entry, err = s.store.Upsert(ctx, tenant, field, value)
	s.metrics.RecordUsage(ctx, string(field), err == nil && entry.Frequency == 1, err)
	if err != nil {
		return Entry{}, fmt.Errorf("record usage: %w", err)
	}
	if entry.Tenant != tenant || entry.FieldType != field {
		s.log.Error("store returned entry outside scope",
			"household_id", string(tenant), "field_type", string(field),
			"entry_household_id", string(entry.Tenant), "entry_field_type", string(entry.FieldType))
		return Entry{}, fmt.Errorf("record usage: %w", ErrTenantMismatch)
	}

	if entry.Frequency == 1 {
		if err := s.enforceCap(ctx, tenant, field); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

// QueryOption adjusts a single GetSuggestions call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	minFrequency int
}

// WithMinFrequency drops entries used fewer than n times.
func WithMinFrequency(n int) QueryOption {
	return func(o *queryOptions) { o.minFrequency = n }
}

// GetSuggestions returns up to limit entries whose value contains query
// (case-insensitive), ranked by frequency, then recency, then value.
// An empty query matches everything; limit <= 0 uses the default.
func (s *Service) GetSuggestions(ctx context.Context, tenant TenantID, field FieldType, query string, limit int, opts ...QueryOption) (out []Suggestion, err error) {
	ctx, span := s.startSpan(ctx, "GetSuggestions", tenant, field)
	start := time.Now()
	defer func() {
		s.metrics.RecordQuery(ctx, string(field), len(out), time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	if err := checkScope(tenant, field); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	qo := queryOptions{minFrequency: 1}
	for _, opt := range opts {
		opt(&qo)
	}

	entries, err := s.list(ctx, tenant, field)
	if err != nil {
		return nil, fmt.Errorf("get suggestions: %w", err)
	}

	matches := filterEntries(entries, query, qo.minFrequency)
	sortByRank(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out = make([]Suggestion, len(matches))
	for i, e := range matches {
		out[i] = Suggestion{Value: e.Value, Frequency: e.Frequency, LastUsed: e.LastUsed}
	}
	return out, nil
}

// TopValues returns the highest ranked values of a scope without metadata.
func (s *Service) TopValues(ctx context.Context, tenant TenantID, field FieldType, limit int) ([]string, error) {
	suggestions, err := s.GetSuggestions(ctx, tenant, field, "", limit)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(suggestions))
	for i, sg := range suggestions {
		values[i] = sg.Value
	}
	return values, nil
}

// list reads a scope and verifies every row belongs to it.
func (s *Service) list(ctx context.Context, tenant TenantID, field FieldType) ([]Entry, error) {
	entries, err := s.store.List(ctx, tenant, field)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Tenant != tenant || e.FieldType != field {
			s.log.Error("store returned entry outside scope",
				"household_id", string(tenant), "field_type", string(field),
				"entry_household_id", string(e.Tenant), "entry_field_type", string(e.FieldType))
			return nil, ErrTenantMismatch
		}
	}
	return entries, nil
}

// scopes expands AllFields into every field type.
func scopes(field FieldType) ([]FieldType, error) {
	if field == AllFields {
		return FieldTypes, nil
	}
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFieldType, string(field))
	}
	return []FieldType{field}, nil
}
