// Package suggest implements the frequency-ranked autocomplete cache behind
// the inventory form fields.
//
// Service is the logic layer: it records usage, ranks and filters
// suggestions, keeps every (tenant, field type) scope under a size cap by
// LFU eviction, and bootstraps scopes from historical values. Persistence is
// delegated to a Store; every call round-trips to it.
package suggest

import (
	"fmt"
	"strings"
	"time"
)

// FieldType identifies which form field a suggestion belongs to.
type FieldType string

const (
	FieldCategory     FieldType = "category"
	FieldLocationPath FieldType = "location_path"
	FieldUnit         FieldType = "unit"

	// AllFields selects every field type in maintenance and statistics calls.
	AllFields FieldType = ""
)

// FieldTypes lists every known field type in a stable order.
var FieldTypes = []FieldType{FieldCategory, FieldLocationPath, FieldUnit}

// ParseFieldType converts a raw string into a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	ft := FieldType(strings.ToLower(strings.TrimSpace(s)))
	if !ft.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFieldType, s)
	}
	return ft, nil
}

// Valid reports whether ft is one of the known field types.
func (ft FieldType) Valid() bool {
	switch ft {
	case FieldCategory, FieldLocationPath, FieldUnit:
		return true
	}
	return false
}

func (ft FieldType) String() string { return string(ft) }

// TenantID isolates one household's suggestions from another's.
type TenantID string

func (t TenantID) String() string { return string(t) }

// Entry is a stored suggestion row.
type Entry struct {
	ID        string    `json:"id"`
	Tenant    TenantID  `json:"household_id"`
	FieldType FieldType `json:"field_type"`
	Value     string    `json:"value"`
	Frequency int       `json:"frequency"`
	LastUsed  time.Time `json:"last_used"`
	CreatedAt time.Time `json:"created_at"`
}

// Suggestion is a ranked query result.
type Suggestion struct {
	Value     string    `json:"value"`
	Frequency int       `json:"frequency"`
	LastUsed  time.Time `json:"last_used"`
}

// RankedEntry is a suggestion annotated with its field type, used in statistics.
type RankedEntry struct {
	FieldType FieldType `json:"field_type"`
	Value     string    `json:"value"`
	Frequency int       `json:"frequency"`
	LastUsed  time.Time `json:"last_used"`
}

// FieldStats aggregates one field type's scope.
type FieldStats struct {
	Count          int `json:"count"`
	TotalFrequency int `json:"total_frequency"`
}

// Statistics is a read-only summary of one tenant's suggestion scopes.
type Statistics struct {
	TotalEntries   int                      `json:"total_entries"`
	TotalFrequency int                      `json:"total_frequency"`
	ByFieldType    map[FieldType]FieldStats `json:"by_field_type"`
	TopValues      []RankedEntry            `json:"top_values"`
}

func normalizeValue(v string) string {
	return strings.TrimSpace(v)
}
