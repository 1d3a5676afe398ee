package suggest

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/homestock/homestock/internal/observability"
)

// InitializeFromSnapshot seeds a scope from historical values. Each
// non-blank value counts as one recorded usage, in input order, so
// duplicates accumulate frequency and the cap applies throughout. Calling it
// twice with the same values counts them twice. It returns the number of
// values applied.
func (s *Service) InitializeFromSnapshot(ctx context.Context, tenant TenantID, field FieldType, values []string) (applied int, err error) {
	ctx, span := s.startSpan(ctx, "InitializeFromSnapshot", tenant, field)
	defer func() { observability.EndSpan(span, err) }()

	if err := checkScope(tenant, field); err != nil {
		return 0, err
	}

	for _, v := range values {
		if normalizeValue(v) == "" {
			continue
		}
		if _, err := s.RecordUsage(ctx, tenant, field, v); err != nil {
			return applied, fmt.Errorf("initialize %s after %d values: %w", field, applied, err)
		}
		applied++
	}

	s.log.SuggestEvent("bootstrap", string(tenant), string(field),
		"values", len(values), "applied", applied)
	return applied, nil
}

// InitializeFromSource pulls existing values for each field type (all of
// them when none are given) and seeds every scope. Scopes are independent
// and are seeded concurrently; order within a scope is preserved.
func (s *Service) InitializeFromSource(ctx context.Context, tenant TenantID, src ValueSource, fields ...FieldType) (map[FieldType]int, error) {
	if tenant == "" {
		return nil, ErrInvalidTenant
	}
	if len(fields) == 0 {
		fields = FieldTypes
	}
	for _, ft := range fields {
		if !ft.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFieldType, string(ft))
		}
	}

	var mu sync.Mutex
	counts := make(map[FieldType]int, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	for _, ft := range fields {
		g.Go(func() error {
			values, err := src.ExistingValues(gctx, tenant, ft)
			if err != nil {
				return fmt.Errorf("existing values for %s: %w", ft, err)
			}
			n, err := s.InitializeFromSnapshot(gctx, tenant, ft, values)
			mu.Lock()
			counts[ft] = n
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return counts, err
	}
	return counts, nil
}
