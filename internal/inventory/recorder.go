package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/homestock/homestock/internal/observability"
	"github.com/homestock/homestock/internal/suggest"
)

// Item is the form data of a committed inventory item.
type Item struct {
	Category     string `json:"category"`
	LocationPath string `json:"location_path"`
	Unit         string `json:"unit"`
}

// UsageRecorder is the part of suggest.Service the Recorder needs.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType, value string) (suggest.Entry, error)
}

// Recorder feeds committed items into the suggestion cache.
type Recorder struct {
	usage UsageRecorder
	log   *observability.Logger
}

// NewRecorder creates a Recorder. A nil logger discards output.
func NewRecorder(usage UsageRecorder, log *observability.Logger) *Recorder {
	if log == nil {
		log = observability.Discard()
	}
	return &Recorder{usage: usage, log: log}
}

// ItemCommitted records one usage for each non-blank field of item. A
// failing field does not stop the others; all failures are joined in the
// returned error. It returns the number of fields recorded.
func (r *Recorder) ItemCommitted(ctx context.Context, tenant suggest.TenantID, item Item) (int, error) {
	fields := []struct {
		ft    suggest.FieldType
		value string
	}{
		{suggest.FieldCategory, item.Category},
		{suggest.FieldLocationPath, item.LocationPath},
		{suggest.FieldUnit, item.Unit},
	}

	var errs []error
	recorded := 0
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		if _, err := r.usage.RecordUsage(ctx, tenant, f.ft, f.value); err != nil {
			r.log.Warn("record committed field failed",
				"household_id", string(tenant), "field_type", string(f.ft), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", f.ft, err))
			continue
		}
		recorded++
	}
	return recorded, errors.Join(errs...)
}
