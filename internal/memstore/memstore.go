// Package memstore is an in-process implementation of every toolshelf
// store. It enforces the same uniqueness and last-admin rules as the
// Postgres schema and backs tests and ephemeral servers.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/preference"
	"github.com/alecgard/toolshelf/internal/shelf"
	"github.com/alecgard/toolshelf/internal/team"
	"github.com/alecgard/toolshelf/internal/user"
)

type prefKey struct{ userID, entryID string }

// Store holds all tables behind one lock.
type Store struct {
	mu sync.Mutex

	users    map[string]*user.User
	sessions map[string]*user.Session

	teams       map[string]*team.Team
	memberships map[string]*team.Membership

	tools   map[string]*catalog.Tool
	entries map[string]*shelf.Entry
	prefs   map[prefKey]*preference.Preference

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       map[string]*user.User{},
		sessions:    map[string]*user.Session{},
		teams:       map[string]*team.Team{},
		memberships: map[string]*team.Membership{},
		tools:       map[string]*catalog.Tool{},
		entries:     map[string]*shelf.Entry{},
		prefs:       map[prefKey]*preference.Preference{},
		now:         time.Now,
	}
}

// SetClock replaces the time source used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Users() user.Store             { return userStore{s} }
func (s *Store) Teams() team.Store             { return teamStore{s} }
func (s *Store) Catalog() catalog.Store        { return catalogStore{s} }
func (s *Store) Shelf() shelf.Store            { return shelfStore{s} }
func (s *Store) Preferences() preference.Store { return prefStore{s} }

// DeleteTool removes a catalog tool without touching shelf entries that
// reference it, leaving those references dangling.
func (s *Store) DeleteTool(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tools, id)
}

// DeleteEntry removes a shelf entry but keeps preferences pointing at it.
func (s *Store) DeleteEntry(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// PreferenceCount returns the number of stored preference rows for a
// (user, entry) pair.
func (s *Store) PreferenceCount(userID, entryID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prefs[prefKey{userID, entryID}]; ok {
		return 1
	}
	return 0
}

// --- users ---

type userStore struct{ s *Store }

func copyUser(u *user.User) *user.User { c := *u; return &c }

func (st userStore) Create(_ context.Context, email, passwordHash, name string) (*user.User, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return nil, apperr.Conflict("user.Create", "email is already registered")
		}
	}
	u := &user.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, Name: name, CreatedAt: s.now()}
	s.users[u.ID] = u
	return copyUser(u), nil
}

func (st userStore) GetByID(_ context.Context, id string) (*user.User, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user.GetByID", "user not found")
	}
	return copyUser(u), nil
}

func (st userStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, apperr.NotFound("user.GetByEmail", "no user with that email")
}

func (st userStore) CreateSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) (*user.Session, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return nil, apperr.NotFound("user.CreateSession", "user not found")
	}
	if _, ok := s.sessions[tokenHash]; ok {
		return nil, apperr.Conflict("user.CreateSession", "session already exists")
	}
	sess := &user.Session{TokenHash: tokenHash, UserID: userID, CreatedAt: s.now(), ExpiresAt: expiresAt}
	s.sessions[tokenHash] = sess
	c := *sess
	return &c, nil
}

func (st userStore) GetSessionUser(_ context.Context, tokenHash string) (*user.User, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok || !sess.ExpiresAt.After(s.now()) {
		return nil, apperr.NotFound("user.GetSessionUser", "session not found")
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return nil, apperr.NotFound("user.GetSessionUser", "session not found")
	}
	return copyUser(u), nil
}

func (st userStore) DeleteSession(_ context.Context, tokenHash string) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (st userStore) CleanExpiredSessions(context.Context) (int64, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, sess := range s.sessions {
		if sess.ExpiresAt.Before(s.now()) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

// --- teams ---

type teamStore struct{ s *Store }

func copyTeam(t *team.Team) *team.Team                   { c := *t; return &c }
func copyMembership(m *team.Membership) *team.Membership { c := *m; return &c }

func (st teamStore) CreateWithAdmin(_ context.Context, name, ownerID string) (*team.Team, *team.Membership, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t := &team.Team{ID: uuid.NewString(), Name: name, OwnerID: ownerID, CreatedAt: now}
	m := &team.Membership{ID: uuid.NewString(), TeamID: t.ID, UserID: ownerID, Role: team.RoleAdmin, CreatedAt: now}
	s.teams[t.ID] = t
	s.memberships[m.ID] = m
	return copyTeam(t), copyMembership(m), nil
}

func (st teamStore) GetTeam(_ context.Context, id string) (*team.Team, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, apperr.NotFound("team.GetTeam", "team not found")
	}
	return copyTeam(t), nil
}

func (st teamStore) GetMany(_ context.Context, ids []string) ([]*team.Team, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*team.Team
	for _, id := range ids {
		if t, ok := s.teams[id]; ok {
			out = append(out, copyTeam(t))
		}
	}
	return out, nil
}

func (st teamStore) ListForUser(_ context.Context, userID string) ([]*team.Team, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*team.Team
	for _, m := range s.memberships {
		if m.UserID == userID {
			if t, ok := s.teams[m.TeamID]; ok {
				out = append(out, copyTeam(t))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st teamStore) GetMembership(_ context.Context, id string) (*team.Membership, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return nil, apperr.NotFound("team.GetMembership", "membership not found")
	}
	return copyMembership(m), nil
}

func (st teamStore) GetMembershipFor(_ context.Context, teamID, userID string) (*team.Membership, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.membershipFor(teamID, userID); m != nil {
		return copyMembership(m), nil
	}
	return nil, apperr.NotFound("team.GetMembershipFor", "membership not found")
}

// membershipFor must be called with s.mu held.
func (s *Store) membershipFor(teamID, userID string) *team.Membership {
	for _, m := range s.memberships {
		if m.TeamID == teamID && m.UserID == userID {
			return m
		}
	}
	return nil
}

func (st teamStore) ListMembers(_ context.Context, teamID string) ([]*team.Member, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*team.Member
	for _, m := range s.memberships {
		if m.TeamID != teamID {
			continue
		}
		member := &team.Member{Membership: *m}
		if u, ok := s.users[m.UserID]; ok {
			member.Email = u.Email
		}
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st teamStore) AddMember(_ context.Context, teamID, userID string, role team.Role) (*team.Membership, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return nil, apperr.NotFound("team.AddMember", "team not found")
	}
	if s.membershipFor(teamID, userID) != nil {
		return nil, apperr.Conflict("team.AddMember", "user is already a member of this team")
	}
	m := &team.Membership{ID: uuid.NewString(), TeamID: teamID, UserID: userID, Role: role, CreatedAt: s.now()}
	s.memberships[m.ID] = m
	return copyMembership(m), nil
}

// adminCount must be called with s.mu held.
func (s *Store) adminCount(teamID string) int {
	n := 0
	for _, m := range s.memberships {
		if m.TeamID == teamID && m.Role == team.RoleAdmin {
			n++
		}
	}
	return n
}

func (st teamStore) UpdateRole(_ context.Context, membershipID string, role team.Role) (*team.Membership, error) {
	const op = "team.UpdateRole"
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipID]
	if !ok {
		return nil, apperr.NotFound(op, "membership not found")
	}
	if m.Role == team.RoleAdmin && role != team.RoleAdmin && s.adminCount(m.TeamID) <= 1 {
		return nil, apperr.Conflict(op, "a team must keep at least one admin")
	}
	m.Role = role
	return copyMembership(m), nil
}

func (st teamStore) DeleteMembership(_ context.Context, membershipID string) error {
	const op = "team.DeleteMembership"
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipID]
	if !ok {
		return apperr.NotFound(op, "membership not found")
	}
	if m.Role == team.RoleAdmin && s.adminCount(m.TeamID) <= 1 {
		return apperr.Conflict(op, "a team must keep at least one admin")
	}
	delete(s.memberships, membershipID)
	return nil
}
