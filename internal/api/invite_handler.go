package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/invite"
)

const inviteAcknowledgement = "Member invited successfully."

// inviteHandler exposes the admission protocol. Its routes sit outside
// auth.Middleware: the protocol resolves the caller itself, after input
// validation, and resolving twice would repeat that step.
type inviteHandler struct {
	errorWriter
	invites *invite.Service
}

func newInviteHandler(invites *invite.Service, ew errorWriter) *inviteHandler {
	return &inviteHandler{errorWriter: ew, invites: invites}
}

// inviteFunctionStatus maps invite failures onto the function's status
// codes. Unexpected failures answer 400 like every other client-visible
// failure of the function.
func inviteFunctionStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// InviteFunction handles POST /functions/v1/invite-member. Responses are
// the flat {"message"} / {"error"} documents the presentation layer reads.
func (h *inviteHandler) InviteFunction(w http.ResponseWriter, r *http.Request) {
	var req invite.Request
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to parse request body"})
		return
	}

	res, err := h.invites.Invite(r.Context(), auth.BearerToken(r), req)
	if h.metrics != nil {
		h.metrics.ObserveInvite(err)
	}
	if err != nil {
		logFailure(r, err)
		writeJSON(w, inviteFunctionStatus(apperr.KindOf(err)), map[string]string{"error": apperr.Message(err)})
		return
	}

	auditInvite(r, res)
	writeJSON(w, http.StatusOK, map[string]string{"message": inviteAcknowledgement})
}

// Invite handles POST /api/v1/teams/{teamID}/invites with the standard
// error envelope.
func (h *inviteHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	res, err := h.invites.Invite(r.Context(), auth.BearerToken(r), invite.Request{
		TeamID: chi.URLParam(r, "teamID"),
		Email:  req.Email,
	})
	if h.metrics != nil {
		h.metrics.ObserveInvite(err)
	}
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	auditInvite(r, res)
	writeJSON(w, http.StatusCreated, res.Membership)
}

// auditInvite records an admission. These routes skip auth.Middleware, so
// the inviter resolved by the protocol is attached to the request here.
func auditInvite(r *http.Request, res *invite.Result) {
	m := res.Membership
	r = r.WithContext(auth.ContextWithIdentity(r.Context(), res.Inviter))
	auditLog(r, "invite", "membership", m.ID, "team_id", m.TeamID, "member_user_id", m.UserID)
}

// inviteRateKey buckets invite calls by credential, falling back to the
// client address for anonymous calls.
func inviteRateKey(r *http.Request) string {
	if token := auth.BearerToken(r); token != "" {
		return "cred:" + auth.HashToken(token)
	}
	return "ip:" + clientIP(r)
}

func (h *inviteHandler) rejectFunction(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.IncRateLimitRejection("invite")
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many invites, try again later"})
}

func (h *inviteHandler) rejectAPI(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.IncRateLimitRejection("invite")
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many invites, try again later")
}
