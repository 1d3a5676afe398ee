package suggest

import (
	"context"
	"fmt"
	"sort"

	"github.com/homestock/homestock/internal/observability"
)

// enforceCap evicts entries until the scope fits in maxCacheSize. Outside of
// races this removes exactly one entry. Concurrent callers may pick the same
// victim; Delete is idempotent, so the cap still holds once all complete.
func (s *Service) enforceCap(ctx context.Context, tenant TenantID, field FieldType) error {
	count, err := s.store.Count(ctx, tenant, field)
	if err != nil {
		return fmt.Errorf("evict: %w", err)
	}
	if count <= s.maxCacheSize {
		return nil
	}

	entries, err := s.list(ctx, tenant, field)
	if err != nil {
		return fmt.Errorf("evict: %w", err)
	}
	victims := evictionVictims(entries, len(entries)-s.maxCacheSize)

	for _, v := range victims {
		if err := s.store.Delete(ctx, tenant, field, v.Value); err != nil {
			return fmt.Errorf("evict %q: %w", v.Value, err)
		}
		s.log.SuggestEvent("evict", string(tenant), string(field),
			"value", v.Value, "frequency", v.Frequency, "last_used", v.LastUsed)
	}
	s.metrics.RecordEvictions(ctx, string(field), len(victims))
	return nil
}

// evictionVictims returns the n least valuable entries.
func evictionVictims(entries []Entry, n int) []Entry {
	if n <= 0 {
		return nil
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return evictLess(sorted[i], sorted[j]) })
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// CleanupLowFrequency removes entries used fewer than threshold times from
// one field type, or from all of them when field is AllFields. The top
// ranked entry of each scope always survives, so cleanup never empties a
// scope. threshold <= 0 uses the configured default. It returns the number
// of entries removed.
func (s *Service) CleanupLowFrequency(ctx context.Context, tenant TenantID, field FieldType, threshold int) (removed int, err error) {
	ctx, span := s.startSpan(ctx, "CleanupLowFrequency", tenant, field)
	defer func() { observability.EndSpan(span, err) }()

	if tenant == "" {
		return 0, ErrInvalidTenant
	}
	fields, err := scopes(field)
	if err != nil {
		return 0, err
	}
	if threshold <= 0 {
		threshold = s.minFrequency
	}

	for _, ft := range fields {
		n, err := s.cleanupScope(ctx, tenant, ft, threshold)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Service) cleanupScope(ctx context.Context, tenant TenantID, field FieldType, threshold int) (int, error) {
	entries, err := s.list(ctx, tenant, field)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	keep := entries[0]
	for _, e := range entries[1:] {
		if rankLess(e, keep) {
			keep = e
		}
	}

	removed := 0
	for _, e := range entries {
		if e.Frequency >= threshold || e.Value == keep.Value {
			continue
		}
		if err := s.store.Delete(ctx, tenant, field, e.Value); err != nil {
			s.metrics.RecordCleanup(ctx, string(field), removed)
			return removed, fmt.Errorf("cleanup %q: %w", e.Value, err)
		}
		removed++
	}

	s.metrics.RecordCleanup(ctx, string(field), removed)
	if removed > 0 {
		s.log.SuggestEvent("cleanup", string(tenant), string(field),
			"removed", removed, "threshold", threshold)
	}
	return removed, nil
}
