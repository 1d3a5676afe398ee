package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/suggest"
)

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

type recordResponse struct {
	Success   bool              `json:"success"`
	FieldType suggest.FieldType `json:"field_type"`
	Value     string            `json:"value"`
	Frequency int               `json:"frequency"`
}

type committedRequest struct {
	HouseholdID householdID `json:"household_id"`
	inventory.Item
}

type committedResponse struct {
	Success  bool `json:"success"`
	Recorded int  `json:"recorded"`
}

type initializeResponse struct {
	Success bool                      `json:"success"`
	Counts  map[suggest.FieldType]int `json:"counts"`
	Message string                    `json:"message"`
}

type cleanupResponse struct {
	Success      bool `json:"success"`
	RemovedCount int  `json:"removed_count"`
}

// householdID accepts a JSON string or number.
type householdID string

func (h *householdID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = householdID(s)
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("household_id: %w", err)
	}
	*h = householdID(n.String())
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Version: s.cfg.Version,
	}
	status := http.StatusOK
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	s.respond(w, r, status, resp)
}

func (s *Server) tenant(r *http.Request) suggest.TenantID {
	if h := strings.TrimSpace(r.FormValue("household_id")); h != "" {
		return suggest.TenantID(h)
	}
	return suggest.TenantID(s.cfg.DefaultHousehold)
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadParam, name)
	}
	if n < lo || (hi > 0 && n > hi) {
		if hi > 0 {
			return 0, fmt.Errorf("%w: %s must be between %d and %d", errBadParam, name, lo, hi)
		}
		return 0, fmt.Errorf("%w: %s must be >= %d", errBadParam, name, lo)
	}
	return n, nil
}

// optionalField parses a field_type parameter where absence means all.
func optionalField(r *http.Request) (suggest.FieldType, error) {
	raw := strings.TrimSpace(r.FormValue("field_type"))
	if raw == "" {
		return suggest.AllFields, nil
	}
	return suggest.ParseFieldType(raw)
}

// degrade answers a failed suggestion lookup with an empty list when the
// store is down, so form inputs keep working without suggestions.
func (s *Server) degrade(w http.ResponseWriter, r *http.Request, err error, empty any) bool {
	if !errors.Is(err, suggest.ErrStorageUnavailable) {
		return false
	}
	s.log.Warn("suggestions degraded", "path", r.URL.Path, "error", err,
		"request_id", requestID(r.Context()))
	w.Header().Set(headerDegraded, "true")
	s.respond(w, r, http.StatusOK, empty)
	return true
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	field, err := suggest.ParseFieldType(r.PathValue("field_type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", suggest.DefaultLimit, minLimit, maxLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	minFreq, err := intParam(r, "min_frequency", 1, 1, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out, err := s.svc.GetSuggestions(r.Context(), s.tenant(r), field,
		r.FormValue("query"), limit, suggest.WithMinFrequency(minFreq))
	if err != nil {
		if !s.degrade(w, r, err, []suggest.Suggestion{}) {
			s.fail(w, r, err)
		}
		return
	}
	s.respond(w, r, http.StatusOK, out)
}

func (s *Server) handleSimpleSuggestions(w http.ResponseWriter, r *http.Request) {
	field, err := suggest.ParseFieldType(r.PathValue("field_type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", suggest.DefaultLimit, minLimit, maxLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	values, err := s.svc.TopValues(r.Context(), s.tenant(r), field, limit)
	if err != nil {
		if !s.degrade(w, r, err, []string{}) {
			s.fail(w, r, err)
		}
		return
	}
	s.respond(w, r, http.StatusOK, values)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errors.Join(errBadParam, err))
		return
	}
	field, err := suggest.ParseFieldType(r.FormValue("field_type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	entry, err := s.svc.RecordUsage(r.Context(), s.tenant(r), field, r.FormValue("value"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, recordResponse{
		Success:   true,
		FieldType: entry.FieldType,
		Value:     entry.Value,
		Frequency: entry.Frequency,
	})
}

func (s *Server) handleItemCommitted(w http.ResponseWriter, r *http.Request) {
	var req committedRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tenant := suggest.TenantID(strings.TrimSpace(string(req.HouseholdID)))
	if tenant == "" {
		tenant = s.tenant(r)
	}

	n, err := s.recorder.ItemCommitted(r.Context(), tenant, req.Item)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, committedResponse{Success: true, Recorded: n})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	field, err := optionalField(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.svc.GetStatistics(r.Context(), s.tenant(r), field)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, stats)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.fail(w, r, errors.Join(errBadParam, err))
		return
	}
	src, err := inventory.ParseExport(data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tenant := s.tenant(r)

	var counts map[suggest.FieldType]int
	err = s.maintenance(r.Context(), func(ctx context.Context) error {
		var err error
		counts, err = s.svc.InitializeFromSource(ctx, tenant, src)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, initializeResponse{
		Success: true,
		Counts:  counts,
		Message: "Cache initialized successfully",
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	field, err := optionalField(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	threshold, err := intParam(r, "min_frequency", 0, 1, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tenant := s.tenant(r)

	var removed int
	err = s.maintenance(r.Context(), func(ctx context.Context) error {
		var err error
		removed, err = s.svc.CleanupLowFrequency(ctx, tenant, field, threshold)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, cleanupResponse{Success: true, RemovedCount: removed})
}
