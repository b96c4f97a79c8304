package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/shelf"
)

// catalogHandler serves the master catalog.
type catalogHandler struct {
	errorWriter
	shelf   *shelf.Service
	catalog *catalog.Service
}

func newCatalogHandler(shelfSvc *shelf.Service, catalogSvc *catalog.Service, ew errorWriter) *catalogHandler {
	return &catalogHandler{errorWriter: ew, shelf: shelfSvc, catalog: catalogSvc}
}

// Browse handles GET /api/v1/catalog?q=...&team_id=...
// With team_id each tool says whether that team already shelves it.
func (h *catalogHandler) Browse(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	q := r.URL.Query().Get("q")
	teamID := r.URL.Query().Get("team_id")
	if teamID != "" && !validID(teamID) {
		writeError(w, http.StatusBadRequest, "validation_error", "team_id must be a UUID")
		return
	}

	items, err := h.shelf.BrowseCatalog(r.Context(), id.UserID, q, teamID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": items})
}

// ListTools handles GET /api/v1/catalog/tools?cursor=...&limit=...
func (h *catalogHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	params := catalog.ListParams{
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		params.Limit = l
	}

	tools, nextCursor, err := h.catalog.List(r.Context(), params)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if tools == nil {
		tools = []*catalog.Tool{}
	}

	resp := map[string]interface{}{
		"tools": tools,
	}
	if nextCursor != "" {
		resp["next_cursor"] = nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTool handles GET /api/v1/catalog/tools/{toolID}.
func (h *catalogHandler) GetTool(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.GetByID(r.Context(), chi.URLParam(r, "toolID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
