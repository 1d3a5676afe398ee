package suggest

import (
	"context"
	"fmt"
	"sort"

	"github.com/homestock/homestock/internal/observability"
)

// GetStatistics summarises one field type, or all of them for AllFields:
// entry and frequency totals per field type plus the top ranked entries
// across the selected scopes. Scopes are read one after another, so the
// result may mix slightly different points in time.
func (s *Service) GetStatistics(ctx context.Context, tenant TenantID, field FieldType) (stats Statistics, err error) {
	ctx, span := s.startSpan(ctx, "GetStatistics", tenant, field)
	defer func() { observability.EndSpan(span, err) }()

	if tenant == "" {
		return Statistics{}, ErrInvalidTenant
	}
	fields, err := scopes(field)
	if err != nil {
		return Statistics{}, err
	}

	stats.ByFieldType = make(map[FieldType]FieldStats)
	var all []Entry
	for _, ft := range fields {
		entries, err := s.list(ctx, tenant, ft)
		if err != nil {
			return Statistics{}, fmt.Errorf("statistics: %w", err)
		}
		if len(entries) == 0 {
			continue
		}

		fs := FieldStats{Count: len(entries)}
		for _, e := range entries {
			fs.TotalFrequency += e.Frequency
		}
		stats.ByFieldType[ft] = fs
		stats.TotalEntries += fs.Count
		stats.TotalFrequency += fs.TotalFrequency
		all = append(all, entries...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Frequency == all[j].Frequency && all[i].LastUsed.Equal(all[j].LastUsed) && all[i].Value == all[j].Value {
			return all[i].FieldType < all[j].FieldType
		}
		return rankLess(all[i], all[j])
	})
	if len(all) > s.topValues {
		all = all[:s.topValues]
	}

	stats.TopValues = make([]RankedEntry, len(all))
	for i, e := range all {
		stats.TopValues[i] = RankedEntry{
			FieldType: e.FieldType,
			Value:     e.Value,
			Frequency: e.Frequency,
			LastUsed:  e.LastUsed,
		}
	}
	return stats, nil
}
