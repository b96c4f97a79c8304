package team

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/db"
)

// MembershipReader is the lookup other components authorize against.
type MembershipReader interface {
	GetMembershipFor(ctx context.Context, teamID, userID string) (*Membership, error)
}

// Store persists teams and memberships. Implementations enforce
// uniqueness of (team, user) and never let a team lose its last admin.
type Store interface {
	MembershipReader

	// CreateWithAdmin creates a team and the creator's admin membership
	// atomically.
	CreateWithAdmin(ctx context.Context, name, ownerID string) (*Team, *Membership, error)
	GetTeam(ctx context.Context, id string) (*Team, error)
	GetMany(ctx context.Context, ids []string) ([]*Team, error)
	ListForUser(ctx context.Context, userID string) ([]*Team, error)
	GetMembership(ctx context.Context, id string) (*Membership, error)
	ListMembers(ctx context.Context, teamID string) ([]*Member, error)
	// AddMember inserts a membership; a duplicate is a conflict.
	AddMember(ctx context.Context, teamID, userID string, role Role) (*Membership, error)
	UpdateRole(ctx context.Context, membershipID string, role Role) (*Membership, error)
	DeleteMembership(ctx context.Context, membershipID string) error
}

const (
	msgTeamNotFound       = "team not found"
	msgMembershipNotFound = "membership not found"
	msgAlreadyMember      = "user is already a member of this team"
	msgLastAdmin          = "a team must keep at least one admin"
)

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	db *db.DB
}

// NewPGStore creates a new team store backed by d.
func NewPGStore(d *db.DB) *PGStore {
	return &PGStore{db: d}
}

const teamColumns = `id, name, owner_id, created_at`

const membershipColumns = `id, team_id, user_id, role, created_at`

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	if err := row.Scan(&t.ID, &t.Name, &t.OwnerID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

func scanMembership(row pgx.Row) (*Membership, error) {
	m := &Membership{}
	if err := row.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PGStore) CreateWithAdmin(ctx context.Context, name, ownerID string) (*Team, *Membership, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	var t *Team
	var m *Membership
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		t, err = scanTeam(tx.QueryRow(ctx,
			`INSERT INTO teams (name, owner_id) VALUES ($1, $2) RETURNING `+teamColumns,
			name, ownerID))
		if err != nil {
			return fmt.Errorf("inserting team: %w", err)
		}
		m, err = scanMembership(tx.QueryRow(ctx,
			`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3) RETURNING `+membershipColumns,
			t.ID, ownerID, RoleAdmin))
		if err != nil {
			return fmt.Errorf("inserting admin membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, db.Classify("team.CreateWithAdmin", err, "user not found", "team already exists")
	}
	return t, m, nil
}

func (s *PGStore) GetTeam(ctx context.Context, id string) (*Team, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	t, err := scanTeam(s.db.Q().QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify("team.GetTeam", fmt.Errorf("getting team: %w", err), msgTeamNotFound, "")
	}
	return t, nil
}

func (s *PGStore) GetMany(ctx context.Context, ids []string) ([]*Team, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.queryTeams(ctx, "team.GetMany",
		`SELECT `+teamColumns+` FROM teams WHERE id = ANY($1::uuid[])`, ids)
}

func (s *PGStore) ListForUser(ctx context.Context, userID string) ([]*Team, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.queryTeams(ctx, "team.ListForUser",
		`SELECT t.id, t.name, t.owner_id, t.created_at
		 FROM teams t JOIN team_members m ON m.team_id = t.id
		 WHERE m.user_id = $1
		 ORDER BY lower(t.name), t.id`, userID)
}

func (s *PGStore) queryTeams(ctx context.Context, op, query string, args ...any) ([]*Team, error) {
	rows, err := s.db.Q().Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(op, fmt.Errorf("querying teams: %w", err), msgTeamNotFound, "")
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, db.Classify(op, fmt.Errorf("scanning team: %w", err), msgTeamNotFound, "")
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(op, fmt.Errorf("iterating teams: %w", err), msgTeamNotFound, "")
	}
	return teams, nil
}

func (s *PGStore) GetMembership(ctx context.Context, id string) (*Membership, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	m, err := scanMembership(s.db.Q().QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM team_members WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify("team.GetMembership", fmt.Errorf("getting membership: %w", err), msgMembershipNotFound, "")
	}
	return m, nil
}

func (s *PGStore) GetMembershipFor(ctx context.Context, teamID, userID string) (*Membership, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	m, err := scanMembership(s.db.Q().QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM team_members WHERE team_id = $1 AND user_id = $2`,
		teamID, userID))
	if err != nil {
		return nil, db.Classify("team.GetMembershipFor", fmt.Errorf("getting membership: %w", err), msgMembershipNotFound, "")
	}
	return m, nil
}

func (s *PGStore) ListMembers(ctx context.Context, teamID string) ([]*Member, error) {
	const op = "team.ListMembers"
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.Q().Query(ctx,
		`SELECT m.id, m.team_id, m.user_id, m.role, m.created_at, COALESCE(u.email, '')
		 FROM team_members m LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = $1
		 ORDER BY m.created_at, m.id`, teamID)
	if err != nil {
		return nil, db.Classify(op, fmt.Errorf("listing members: %w", err), msgTeamNotFound, "")
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.CreatedAt, &m.Email); err != nil {
			return nil, db.Classify(op, fmt.Errorf("scanning member: %w", err), msgTeamNotFound, "")
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(op, fmt.Errorf("iterating members: %w", err), msgTeamNotFound, "")
	}
	return members, nil
}

// AddMember relies on the (team_id, user_id) unique constraint; concurrent
// duplicates resolve to exactly one row and a conflict for the rest.
func (s *PGStore) AddMember(ctx context.Context, teamID, userID string, role Role) (*Membership, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	m, err := scanMembership(s.db.Q().QueryRow(ctx,
		`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3) RETURNING `+membershipColumns,
		teamID, userID, role))
	if err != nil {
		return nil, db.Classify("team.AddMember", fmt.Errorf("adding member: %w", err), msgTeamNotFound, msgAlreadyMember)
	}
	return m, nil
}

// lockForAdminChange locks the membership's team row and reports the
// membership and the team's admin count. Serializing on the team row keeps
// two concurrent demotions from each seeing the other admin.
func lockForAdminChange(ctx context.Context, tx pgx.Tx, membershipID string) (*Membership, int, error) {
	m, err := scanMembership(tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM team_members WHERE id = $1`, membershipID))
	if err != nil {
		return nil, 0, fmt.Errorf("getting membership: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT id FROM teams WHERE id = $1 FOR UPDATE`, m.TeamID); err != nil {
		return nil, 0, fmt.Errorf("locking team: %w", err)
	}
	// Re-read after the lock so the role reflects committed changes.
	m, err = scanMembership(tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM team_members WHERE id = $1`, membershipID))
	if err != nil {
		return nil, 0, fmt.Errorf("getting membership: %w", err)
	}
	var admins int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM team_members WHERE team_id = $1 AND role = 'admin'`, m.TeamID,
	).Scan(&admins); err != nil {
		return nil, 0, fmt.Errorf("counting admins: %w", err)
	}
	return m, admins, nil
}

func (s *PGStore) UpdateRole(ctx context.Context, membershipID string, role Role) (*Membership, error) {
	const op = "team.UpdateRole"
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	var updated *Membership
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		m, admins, err := lockForAdminChange(ctx, tx, membershipID)
		if err != nil {
			return err
		}
		if m.Role == RoleAdmin && role != RoleAdmin && admins <= 1 {
			return apperr.Conflict(op, msgLastAdmin)
		}
		updated, err = scanMembership(tx.QueryRow(ctx,
			`UPDATE team_members SET role = $2 WHERE id = $1 RETURNING `+membershipColumns,
			membershipID, role))
		if err != nil {
			return fmt.Errorf("updating role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, db.Classify(op, err, msgMembershipNotFound, "")
	}
	return updated, nil
}

func (s *PGStore) DeleteMembership(ctx context.Context, membershipID string) error {
	const op = "team.DeleteMembership"
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		m, admins, err := lockForAdminChange(ctx, tx, membershipID)
		if err != nil {
			return err
		}
		if m.Role == RoleAdmin && admins <= 1 {
			return apperr.Conflict(op, msgLastAdmin)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE id = $1`, membershipID); err != nil {
			return fmt.Errorf("deleting membership: %w", err)
		}
		return nil
	})
	return db.Classify(op, err, msgMembershipNotFound, "")
}
