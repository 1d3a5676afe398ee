// Package inventory adapts inventory records to the suggestion cache: it
// reads historical field values out of an inventory export and records
// usage when new items are committed.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/homestock/homestock/internal/suggest"
)

// LocationSeparator joins location names into a location path.
const LocationSeparator = " > "

// ErrInvalidExport is returned for documents that are not an inventory export.
var ErrInvalidExport = errors.New("inventory: invalid export document")

// JSONSource serves existing field values from an inventory export:
//
//	{"items":[{"household_id":"1","category":"Dairy","unit":"L","location_path":"Kitchen > Fridge"}]}
//
// An item may carry "location" as an array of names (or objects with a
// "name") instead of "location_path". Items without a household_id belong
// to every household, which suits single-household exports.
type JSONSource struct {
	items []gjson.Result
}

var _ suggest.ValueSource = (*JSONSource)(nil)

// ParseExport validates an export document and indexes its items.
func ParseExport(data []byte) (*JSONSource, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidExport)
	}
	items := gjson.GetBytes(data, "items")
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: missing items array", ErrInvalidExport)
	}
	return &JSONSource{items: items.Array()}, nil
}

// LoadExport reads and parses an export file.
func LoadExport(path string) (*JSONSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return ParseExport(data)
}

// Len returns the number of items in the export.
func (s *JSONSource) Len() int { return len(s.items) }

// ExistingValues returns the field's value for every item of the tenant, in
// document order, duplicates included. Blank values are skipped.
func (s *JSONSource) ExistingValues(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", suggest.ErrUnknownFieldType, string(field))
	}

	var values []string
	for _, item := range s.items {
		if hh := item.Get("household_id"); hh.Exists() && hh.String() != string(tenant) {
			continue
		}
		var v string
		switch field {
		case suggest.FieldCategory:
			v = item.Get("category").String()
		case suggest.FieldUnit:
			v = item.Get("unit").String()
		case suggest.FieldLocationPath:
			v = locationPath(item)
		}
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

func locationPath(item gjson.Result) string {
	if p := item.Get("location_path"); p.Exists() {
		return p.String()
	}
	loc := item.Get("location")
	if !loc.IsArray() {
		return loc.String()
	}

	var parts []string
	for _, part := range loc.Array() {
		name := part.String()
		if part.IsObject() {
			name = part.Get("name").String()
		}
		if name = strings.TrimSpace(name); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, LocationSeparator)
}
