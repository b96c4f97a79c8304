package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alecgard/toolshelf/internal/apperr"
)

// --- mock session store ---

type mockSessions struct {
	sessions map[string]*Identity
	err      error
}

func (m *mockSessions) LookupSession(_ context.Context, token string) (*Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.sessions[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return id, nil
}

// --- JWT tests ---

func TestJWTResolver_RoundTrip(t *testing.T) {
	want := Identity{UserID: "3f0c3c4e-5a8e-4f55-9a6b-9f7c1b8d2e11", Email: "ada@example.com"}
	token, err := IssueToken(want, "secret", "toolshelf", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	got, err := NewJWTResolver("secret", "toolshelf").Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if *got != want {
		t.Errorf("got %+v, want %+v", *got, want)
	}
}

func TestJWTResolver_Rejects(t *testing.T) {
	id := Identity{UserID: "u1", Email: "u1@example.com"}
	good, _ := IssueToken(id, "secret", "", time.Hour)
	expired, _ := IssueToken(id, "secret", "", -time.Minute)
	wrongIssuer, _ := IssueToken(id, "secret", "someone-else", time.Hour)
	noSubject, _ := IssueToken(Identity{Email: "x@example.com"}, "secret", "", time.Hour)

	tests := []struct {
		name     string
		resolver *JWTResolver
		token    string
	}{
		{"wrong secret", NewJWTResolver("other", ""), good},
		{"expired", NewJWTResolver("secret", ""), expired},
		{"issuer mismatch", NewJWTResolver("secret", "toolshelf"), wrongIssuer},
		{"missing subject", NewJWTResolver("secret", ""), noSubject},
		{"garbage", NewJWTResolver("secret", ""), "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.resolver.Resolve(context.Background(), tt.token)
			if !errors.Is(err, apperr.ErrAuthentication) {
				t.Errorf("expected authentication error, got %v", err)
			}
		})
	}
}

// --- Chain tests ---

func TestChain(t *testing.T) {
	sessions := &mockSessions{sessions: map[string]*Identity{
		"sess-token": {UserID: "u2", Email: "u2@example.com"},
	}}
	jwtToken, _ := IssueToken(Identity{UserID: "u1", Email: "u1@example.com"}, "secret", "", time.Hour)
	chain := Chain(NewJWTResolver("secret", ""), NewSessionResolver(sessions))

	id, err := chain.Resolve(context.Background(), jwtToken)
	if err != nil || id.UserID != "u1" {
		t.Fatalf("jwt credential: id=%+v err=%v", id, err)
	}

	id, err = chain.Resolve(context.Background(), "sess-token")
	if err != nil || id.UserID != "u2" {
		t.Fatalf("session credential: id=%+v err=%v", id, err)
	}

	if _, err := chain.Resolve(context.Background(), "unknown"); !errors.Is(err, apperr.ErrAuthentication) {
		t.Errorf("unknown credential: expected authentication error, got %v", err)
	}
	if _, err := chain.Resolve(context.Background(), "  "); !errors.Is(err, apperr.ErrAuthentication) {
		t.Errorf("blank credential: expected authentication error, got %v", err)
	}
}

func TestChain_StopsOnUnavailable(t *testing.T) {
	down := &mockSessions{err: apperr.Unavailable("user.LookupSession", context.DeadlineExceeded)}
	chain := Chain(NewSessionResolver(down))

	_, err := chain.Resolve(context.Background(), "sess-token")
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

// --- HashToken tests ---

func TestHashToken_Deterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("HashToken should be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("different tokens should produce different hashes")
	}
	if len(HashToken("anything")) != 64 {
		t.Error("expected 64 hex characters")
	}
}

// --- Context helpers tests ---

func TestIdentityContext_RoundTrip(t *testing.T) {
	id := &Identity{UserID: "u1", Email: "u1@example.com"}
	got := IdentityFromContext(ContextWithIdentity(context.Background(), id))
	if got == nil || got.UserID != "u1" {
		t.Fatalf("expected identity from context, got %+v", got)
	}
	if IdentityFromContext(context.Background()) != nil {
		t.Error("expected nil from empty context")
	}
}

// --- Middleware tests ---

func TestMiddleware(t *testing.T) {
	sessions := &mockSessions{sessions: map[string]*Identity{
		"valid": {UserID: "u1", Email: "u1@example.com"},
	}}
	resolver := Chain(NewSessionResolver(sessions))

	var seen *Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid bearer", "Bearer valid", http.StatusOK},
		{"lowercase scheme", "bearer valid", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			failures := 0
			handler := Middleware(resolver, func() { failures++ })(inner)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if seen == nil || seen.UserID != "u1" {
					t.Errorf("expected identity in context, got %+v", seen)
				}
				return
			}
			if failures != 1 {
				t.Errorf("expected failure hook to run once, ran %d", failures)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != "unauthorized" {
				t.Errorf("code = %q", body.Error.Code)
			}
		})
	}
}

func TestMiddleware_Unavailable(t *testing.T) {
	down := &mockSessions{err: apperr.Unavailable("user.LookupSession", context.DeadlineExceeded)}
	handler := Middleware(Chain(NewSessionResolver(down)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
