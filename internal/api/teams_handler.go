package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/team"
)

// teamsHandler groups team-related HTTP handlers.
type teamsHandler struct {
	errorWriter
	teams *team.Service
}

func newTeamsHandler(teams *team.Service, ew errorWriter) *teamsHandler {
	return &teamsHandler{errorWriter: ew, teams: teams}
}

// ListTeams handles GET /api/v1/teams, returning the caller's teams.
func (h *teamsHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	teams, err := h.teams.ListTeams(r.Context(), id.UserID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if teams == nil {
		teams = []*team.Team{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"teams": teams})
}

// CreateTeam handles POST /api/v1/teams.
func (h *teamsHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	t, err := h.teams.CreateTeam(r.Context(), id.UserID, req.Name)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	auditLog(r, "create", "team", t.ID, "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

// GetTeam handles GET /api/v1/teams/{teamID}.
func (h *teamsHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	teamID := chi.URLParam(r, "teamID")

	t, err := h.teams.GetTeam(r.Context(), id.UserID, teamID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	m, err := h.teams.Membership(r.Context(), teamID, id.UserID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"team": t,
		"role": m.Role,
	})
}

// ListMembers handles GET /api/v1/teams/{teamID}/members.
func (h *teamsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	members, err := h.teams.ListMembers(r.Context(), id.UserID, chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if members == nil {
		members = []*team.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}
