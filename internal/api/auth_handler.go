package api

import (
	"net/http"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/user"
)

// authHandler groups the local identity provider's HTTP handlers.
type authHandler struct {
	errorWriter
	users *user.Service
}

func newAuthHandler(users *user.Service, ew errorWriter) *authHandler {
	return &authHandler{errorWriter: ew, users: users}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Signup handles POST /api/v1/auth/signup.
func (h *authHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req user.CreateUserInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u, err := h.users.Signup(r.Context(), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	auditLog(r, "signup", "user", u.ID, "email", u.Email)
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Email: u.Email, Name: u.Name})
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "email and password are required")
		return
	}

	token, sess, u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": sess.ExpiresAt,
		"user":       userResponse{ID: u.ID, Email: u.Email, Name: u.Name},
	})
}

// Me handles GET /api/v1/auth/me. Identities issued by an external
// provider may have no local account; those get the identity alone.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	u, err := h.users.Get(r.Context(), id.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Email: u.Email, Name: u.Name})
	case apperr.KindOf(err) == apperr.KindNotFound || apperr.KindOf(err) == apperr.KindValidation:
		writeJSON(w, http.StatusOK, userResponse{ID: id.UserID, Email: id.Email})
	default:
		h.writeAppError(w, r, err)
	}
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.users.Logout(r.Context(), token); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
