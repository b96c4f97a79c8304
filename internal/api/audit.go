package api

import (
	"log/slog"
	"net/http"

	"github.com/alecgard/toolshelf/internal/auth"
)

// auditLog emits a structured audit log entry for a mutating action.
func auditLog(r *http.Request, action string, resourceType string, resourceID string, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", clientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	if id := auth.IdentityFromContext(r.Context()); id != nil {
		attrs = append(attrs, "user_id", id.UserID, "user_email", id.Email)
	}

	attrs = append(attrs, detail...)
	slog.InfoContext(r.Context(), "audit", attrs...)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
