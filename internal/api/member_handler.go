package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/team"
)

// membershipHandler handles admin actions on a single membership.
type membershipHandler struct {
	errorWriter
	teams *team.Service
}

func newMembershipHandler(teams *team.Service, ew errorWriter) *membershipHandler {
	return &membershipHandler{errorWriter: ew, teams: teams}
}

// ChangeRole handles PUT /api/v1/memberships/{membershipID}.
func (h *membershipHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	membershipID := chi.URLParam(r, "membershipID")

	var req struct {
		Role string `json:"role"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	m, err := h.teams.ChangeRole(r.Context(), id.UserID, membershipID, req.Role)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	auditLog(r, "change_role", "membership", m.ID, "team_id", m.TeamID, "member_user_id", m.UserID, "role", string(m.Role))
	writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /api/v1/memberships/{membershipID}.
func (h *membershipHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	m, err := h.teams.RemoveMember(r.Context(), id.UserID, chi.URLParam(r, "membershipID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	auditLog(r, "remove", "membership", m.ID, "team_id", m.TeamID, "member_user_id", m.UserID)
	w.WriteHeader(http.StatusNoContent)
}
