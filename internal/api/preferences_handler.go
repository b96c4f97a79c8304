package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/preference"
	"github.com/alecgard/toolshelf/internal/shelf"
)

// preferencesHandler serves per-user pins, recency and the dashboard lists.
type preferencesHandler struct {
	errorWriter
	prefs *preference.Service
}

func newPreferencesHandler(prefs *preference.Service, ew errorWriter) *preferencesHandler {
	return &preferencesHandler{errorWriter: ew, prefs: prefs}
}

// TogglePin handles POST /api/v1/shelf/{entryID}/pin.
func (h *preferencesHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	entryID := chi.URLParam(r, "entryID")

	pinned, err := h.prefs.TogglePin(r.Context(), id.UserID, entryID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry_id":  entryID,
		"is_pinned": pinned,
	})
}

// Touch handles POST /api/v1/shelf/{entryID}/touch.
func (h *preferencesHandler) Touch(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	if err := h.prefs.Touch(r.Context(), id.UserID, chi.URLParam(r, "entryID")); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TouchRPC handles POST /rpc/touch_tool, the call the shelf page makes
// when a tool link is opened. userId must be the caller.
func (h *preferencesHandler) TouchRPC(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	var req struct {
		ToolID string `json:"toolId"`
		UserID string `json:"userId"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if !validID(req.ToolID) {
		writeError(w, http.StatusBadRequest, "validation_error", "toolId must be a UUID")
		return
	}
	if req.UserID != "" && req.UserID != id.UserID {
		writeError(w, http.StatusForbidden, "forbidden", "cannot record usage for another user")
		return
	}

	if err := h.prefs.Touch(r.Context(), id.UserID, req.ToolID); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecentTools handles GET /api/v1/me/recent?limit=...
func (h *preferencesHandler) RecentTools(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	limit := preference.DefaultRecentLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = l
	}

	tools, err := h.prefs.RecentTools(r.Context(), id.UserID, limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeTools(w, tools)
}

// PinnedTools handles GET /api/v1/me/pinned.
func (h *preferencesHandler) PinnedTools(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	tools, err := h.prefs.PinnedTools(r.Context(), id.UserID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeTools(w, tools)
}

func writeTools(w http.ResponseWriter, tools []shelf.ResolvedTool) {
	if tools == nil {
		tools = []shelf.ResolvedTool{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}
