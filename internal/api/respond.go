package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/suggest"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"

	headerRequestID = "X-Request-ID"
	headerDegraded  = "X-Suggestions-Degraded"
)

// errBadParam marks malformed query or form parameters.
var errBadParam = errors.New("invalid parameter")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withRequestID tags every request with an ID (the caller's, or a new
// UUID), echoes it in the response and logs the completed request.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

		s.log.Request(r.Method, r.URL.Path, rec.status,
			"request_id", id, "duration_ms", time.Since(start).Milliseconds())
	})
}

func wantsMsgpack(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, contentTypeMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

func isMsgpackBody(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, contentTypeMsgpack) || strings.HasPrefix(ct, "application/x-msgpack")
}

// respond writes v as msgpack when the client asks for it, JSON otherwise.
// Both encodings use the json field names.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsMsgpack(r) {
		w.Header().Set("Content-Type", contentTypeMsgpack)
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		enc.UseCompactInts(true)
		if err := enc.Encode(v); err != nil {
			s.log.Warn("encode msgpack response", "error", err, "request_id", requestID(r.Context()))
		}
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode json response", "error", err, "request_id", requestID(r.Context()))
	}
}

// decodeBody reads a JSON or msgpack request body into v.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if isMsgpackBody(r) {
		dec := msgpack.NewDecoder(body)
		dec.SetCustomStructTag("json")
		if err := dec.Decode(v); err != nil {
			return errors.Join(errBadParam, err)
		}
		return nil
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.Join(errBadParam, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, suggest.ErrInvalidValue),
		errors.Is(err, suggest.ErrUnknownFieldType),
		errors.Is(err, suggest.ErrInvalidTenant),
		errors.Is(err, inventory.ErrInvalidExport),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest
	case errors.Is(err, suggest.ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	id := requestID(r.Context())
	switch {
	case status >= 500:
		s.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err, "request_id", id)
	default:
		s.log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err, "request_id", id)
	}
	s.respond(w, r, status, errorResponse{Error: err.Error(), RequestID: id})
}
