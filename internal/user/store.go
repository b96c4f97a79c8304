package user

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/toolshelf/internal/db"
)

// Store persists users and sessions. Emails are stored lower-cased; lookups
// expect a normalized email.
type Store interface {
	Create(ctx context.Context, email, passwordHash, name string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) (*Session, error)
	GetSessionUser(ctx context.Context, tokenHash string) (*User, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	db *db.DB
}

// NewPGStore creates a new user store backed by d.
func NewPGStore(d *db.DB) *PGStore {
	return &PGStore{db: d}
}

const userColumns = `id, email, password_hash, name, created_at`

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new user. A duplicate email is a conflict.
func (s *PGStore) Create(ctx context.Context, email, passwordHash, name string) (*User, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(s.db.Q().QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		email, passwordHash, name,
	))
	if err != nil {
		return nil, db.Classify("user.Create", fmt.Errorf("creating user: %w", err), "user not found", "email is already registered")
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *PGStore) GetByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(s.db.Q().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify("user.GetByID", fmt.Errorf("getting user by id: %w", err), "user not found", "")
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (s *PGStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(s.db.Q().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, db.Classify("user.GetByEmail", fmt.Errorf("getting user by email: %w", err), "no user with that email", "")
	}
	return u, nil
}

// CreateSession stores a session keyed by the hash of its token.
func (s *PGStore) CreateSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) (*Session, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	sess := &Session{}
	err := s.db.Q().QueryRow(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING token_hash, user_id, created_at, expires_at`,
		tokenHash, userID, expiresAt,
	).Scan(&sess.TokenHash, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return nil, db.Classify("user.CreateSession", fmt.Errorf("creating session: %w", err), "user not found", "session already exists")
	}
	return sess, nil
}

// GetSessionUser returns the user owning an unexpired session.
func (s *PGStore) GetSessionUser(ctx context.Context, tokenHash string) (*User, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(s.db.Q().QueryRow(ctx,
		`SELECT u.id, u.email, u.password_hash, u.name, u.created_at
		 FROM sessions s JOIN users u ON s.user_id = u.id
		 WHERE s.token_hash = $1 AND s.expires_at > now()`,
		tokenHash,
	))
	if err != nil {
		return nil, db.Classify("user.GetSessionUser", fmt.Errorf("getting session user: %w", err), "session not found", "")
	}
	return u, nil
}

// DeleteSession removes a session by token hash.
func (s *PGStore) DeleteSession(ctx context.Context, tokenHash string) error {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	if _, err := s.db.Q().Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return db.Classify("user.DeleteSession", fmt.Errorf("deleting session: %w", err), "", "")
	}
	return nil
}

// CleanExpiredSessions deletes all sessions that have expired.
func (s *PGStore) CleanExpiredSessions(ctx context.Context) (int64, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	tag, err := s.db.Q().Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, db.Classify("user.CleanExpiredSessions", fmt.Errorf("cleaning expired sessions: %w", err), "", "")
	}
	return tag.RowsAffected(), nil
}
