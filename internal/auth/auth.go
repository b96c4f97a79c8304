package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/alecgard/toolshelf/internal/apperr"
)

// Identity is the caller as issued by the identity provider. The core
// never creates or mutates identities.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Resolver turns a request credential into an Identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

// Directory looks identities up by email.
type Directory interface {
	LookupByEmail(ctx context.Context, email string) (*Identity, error)
}

// SessionLookup is the interface for resolving session tokens to identities.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, credential string) (*Identity, error)

func (f ResolverFunc) Resolve(ctx context.Context, credential string) (*Identity, error) {
	return f(ctx, credential)
}

var errInvalidCredential = apperr.Authentication("", "invalid or expired credential")

// Claims is the token payload the identity provider signs. Subject carries
// the user id.
type Claims struct {
	Email string `json:"email"`
	jwtlib.RegisteredClaims
}

// JWTResolver verifies HS256 bearer tokens.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver returns a resolver for tokens signed with secret. When
// issuer is non-empty the iss claim must match it.
func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

func (r *JWTResolver) Resolve(_ context.Context, credential string) (*Identity, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithExpirationRequired(),
	}
	if r.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(r.issuer))
	}

	parsed, err := jwtlib.ParseWithClaims(credential, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return nil, errInvalidCredential
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errInvalidCredential
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// IssueToken signs a token for id that expires after ttl. It stands in for
// the identity provider in development and tests.
func IssueToken(id Identity, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// SessionResolver resolves opaque session tokens.
type SessionResolver struct {
	sessions SessionLookup
}

func NewSessionResolver(sessions SessionLookup) *SessionResolver {
	return &SessionResolver{sessions: sessions}
}

func (r *SessionResolver) Resolve(ctx context.Context, credential string) (*Identity, error) {
	id, err := r.sessions.LookupSession(ctx, credential)
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.KindUnavailable {
			return nil, err
		}
		return nil, errInvalidCredential
	}
	if id == nil {
		return nil, errInvalidCredential
	}
	return id, nil
}

// Chain tries each resolver in order and returns the first identity.
// Transient failures stop the chain so an outage is not reported as a bad
// credential.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, credential string) (*Identity, error) {
		if strings.TrimSpace(credential) == "" {
			return nil, apperr.Authentication("", "missing credential")
		}
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			id, err := r.Resolve(ctx, credential)
			if err == nil {
				return id, nil
			}
			if errors.Is(err, apperr.ErrUnavailable) {
				return nil, err
			}
		}
		return nil, errInvalidCredential
	})
}

// HashToken returns the hex-encoded SHA-256 hash of a plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
