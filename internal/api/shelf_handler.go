package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/shelf"
)

// shelfHandler groups a team's shelf HTTP handlers.
type shelfHandler struct {
	errorWriter
	shelf *shelf.Service
}

func newShelfHandler(svc *shelf.Service, ew errorWriter) *shelfHandler {
	return &shelfHandler{errorWriter: ew, shelf: svc}
}

// ListShelf handles GET /api/v1/teams/{teamID}/shelf?q=...
func (h *shelfHandler) ListShelf(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	tools, err := h.shelf.ListShelf(r.Context(), id.UserID, chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if q := r.URL.Query().Get("q"); q != "" {
		tools = shelf.Filter(tools, q)
	}
	if tools == nil {
		tools = []shelf.ResolvedTool{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

// AddCatalogEntry handles POST /api/v1/teams/{teamID}/shelf/catalog.
func (h *shelfHandler) AddCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	teamID := chi.URLParam(r, "teamID")

	var req shelf.CatalogRef
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.MasterToolID != "" && !validID(req.MasterToolID) {
		writeError(w, http.StatusBadRequest, "validation_error", "master_tool_id must be a UUID")
		return
	}

	e, err := h.shelf.AddCatalogEntry(r.Context(), id.UserID, teamID, req.MasterToolID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	auditLog(r, "add_catalog_tool", "shelf_entry", e.ID, "team_id", teamID, "master_tool_id", req.MasterToolID)
	writeJSON(w, http.StatusCreated, e)
}

// AddCustomEntry handles POST /api/v1/teams/{teamID}/shelf/custom.
func (h *shelfHandler) AddCustomEntry(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	teamID := chi.URLParam(r, "teamID")

	var req shelf.CustomEntry
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	e, err := h.shelf.AddCustomEntry(r.Context(), id.UserID, teamID, req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	auditLog(r, "add_custom_tool", "shelf_entry", e.ID, "team_id", teamID, "title", e.Custom.Title)
	writeJSON(w, http.StatusCreated, e)
}
