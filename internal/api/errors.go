package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/metrics"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// statusFor maps an error kind to its HTTP status and envelope code.
func statusFor(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, "validation_error"
	case apperr.KindAuthentication:
		return http.StatusUnauthorized, "unauthorized"
	case apperr.KindAuthorization:
		return http.StatusForbidden, "forbidden"
	case apperr.KindNotFound:
		return http.StatusNotFound, "not_found"
	case apperr.KindConflict:
		return http.StatusConflict, "conflict"
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// logFailure records detail for failures the caller only sees generically.
func logFailure(r *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindUnexpected:
		slog.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()))
	case apperr.KindUnavailable:
		slog.WarnContext(r.Context(), "dependency unavailable", "error", err, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()))
	}
}

// errorWriter is embedded by every handler so failures are counted the
// same way everywhere.
type errorWriter struct {
	metrics *metrics.Metrics
}

// writeAppError writes err in the standard envelope. Unexpected failures
// are logged and reported without detail.
func (e errorWriter) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if e.metrics != nil {
		e.metrics.IncOperationError(err)
	}
	logFailure(r, err)
	status, code := statusFor(kind)
	writeError(w, status, code, apperr.Message(err))
}

// validID reports whether s is a UUID in canonical form.
func validID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
