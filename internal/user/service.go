package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/auth"
)

const minPasswordLen = 8

// Service implements signup, login and logout for the local identity
// provider.
type Service struct {
	store      Store
	sessionTTL time.Duration
	now        func() time.Time
}

// NewService creates a Service issuing sessions valid for sessionTTL.
func NewService(store Store, sessionTTL time.Duration) *Service {
	return &Service{store: store, sessionTTL: sessionTTL, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email parses as a bare address.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Signup validates and creates a new account.
func (s *Service) Signup(ctx context.Context, in CreateUserInput) (*User, error) {
	const op = "user.Signup"
	email := NormalizeEmail(in.Email)
	if !ValidEmail(email) {
		return nil, apperr.Validation(op, "a valid email is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Validation(op, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Unexpected(op, fmt.Errorf("hashing password: %w", err))
	}
	return s.store.Create(ctx, email, string(hash), strings.TrimSpace(in.Name))
}

// Login checks credentials and opens a session. It returns the plaintext
// token; only its hash is stored.
func (s *Service) Login(ctx context.Context, email, password string) (string, *Session, *User, error) {
	const op = "user.Login"
	u, err := s.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return "", nil, nil, apperr.Authentication(op, "invalid email or password")
		}
		return "", nil, nil, err
	}
	if !CheckPassword(u, password) {
		return "", nil, nil, apperr.Authentication(op, "invalid email or password")
	}

	plaintext, err := newToken()
	if err != nil {
		return "", nil, nil, apperr.Unexpected(op, err)
	}
	sess, err := s.store.CreateSession(ctx, auth.HashToken(plaintext), u.ID, s.now().Add(s.sessionTTL))
	if err != nil {
		return "", nil, nil, err
	}
	return plaintext, sess, u, nil
}

// Logout revokes the session for token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, auth.HashToken(token))
}

// Get returns the account for id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// CleanExpiredSessions deletes expired sessions.
func (s *Service) CleanExpiredSessions(ctx context.Context) (int64, error) {
	return s.store.CleanExpiredSessions(ctx)
}

// CheckPassword verifies a plaintext password against the user's stored hash.
func CheckPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
