package user

import (
	"context"

	"github.com/alecgard/toolshelf/internal/auth"
)

// AuthAdapter exposes the user store as the auth.SessionLookup and
// auth.Directory the rest of the system depends on.
type AuthAdapter struct {
	store Store
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given user store.
func NewAuthAdapter(store Store) *AuthAdapter {
	return &AuthAdapter{store: store}
}

// LookupSession resolves a plaintext session token to an identity.
func (a *AuthAdapter) LookupSession(ctx context.Context, token string) (*auth.Identity, error) {
	u, err := a.store.GetSessionUser(ctx, auth.HashToken(token))
	if err != nil {
		return nil, err
	}
	return &auth.Identity{UserID: u.ID, Email: u.Email}, nil
}

// LookupByEmail resolves an email to an identity. The match is
// case-insensitive.
func (a *AuthAdapter) LookupByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	u, err := a.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return &auth.Identity{UserID: u.ID, Email: u.Email}, nil
}
