package preference

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/toolshelf/internal/db"
)

// Store persists preferences. Every write is a single upsert so concurrent
// writers never create a second row for the same (user, entry).
type Store interface {
	Touch(ctx context.Context, userID, entryID string, at time.Time) error
	// TogglePin flips is_pinned and returns the new value. A missing row
	// becomes pinned.
	TogglePin(ctx context.Context, userID, entryID string) (bool, error)
	// ListRecent returns used preferences on entries that still exist in
	// teams the user still belongs to, most recent first.
	ListRecent(ctx context.Context, userID string, limit int) ([]*Preference, error)
	// ListPinned returns pinned preferences under the same visibility rule,
	// most recently used first, never-used last.
	ListPinned(ctx context.Context, userID string) ([]*Preference, error)
	ListForEntries(ctx context.Context, userID string, entryIDs []string) ([]*Preference, error)
}

const msgEntryNotFound = "shelf entry not found"

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	db *db.DB
}

// NewPGStore creates a new preference store backed by d.
func NewPGStore(d *db.DB) *PGStore {
	return &PGStore{db: d}
}

const prefColumns = `p.user_id, p.team_shelf_tool_id, p.is_pinned, p.last_used_at`

func scanPreference(row pgx.Row) (*Preference, error) {
	p := &Preference{}
	if err := row.Scan(&p.UserID, &p.EntryID, &p.IsPinned, &p.LastUsedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PGStore) Touch(ctx context.Context, userID, entryID string, at time.Time) error {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	_, err := s.db.Q().Exec(ctx,
		`INSERT INTO user_tool_preferences (user_id, team_shelf_tool_id, last_used_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, team_shelf_tool_id) DO UPDATE SET last_used_at = EXCLUDED.last_used_at`,
		userID, entryID, at)
	if err != nil {
		return db.Classify("preference.Touch", fmt.Errorf("touching tool: %w", err), msgEntryNotFound, "")
	}
	return nil
}

func (s *PGStore) TogglePin(ctx context.Context, userID, entryID string) (bool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	var pinned bool
	err := s.db.Q().QueryRow(ctx,
		`INSERT INTO user_tool_preferences (user_id, team_shelf_tool_id, is_pinned)
		 VALUES ($1, $2, true)
		 ON CONFLICT (user_id, team_shelf_tool_id)
		 DO UPDATE SET is_pinned = NOT user_tool_preferences.is_pinned
		 RETURNING is_pinned`,
		userID, entryID).Scan(&pinned)
	if err != nil {
		return false, db.Classify("preference.TogglePin", fmt.Errorf("toggling pin: %w", err), msgEntryNotFound, "")
	}
	return pinned, nil
}

// visiblePrefs joins a user's preferences to entries, memberships and
// catalog tools so rows for deleted entries, left teams or removed tools
// drop out before LIMIT applies.
const visiblePrefs = `FROM user_tool_preferences p
	JOIN team_shelf_tools e ON e.id = p.team_shelf_tool_id
	JOIN team_members m ON m.team_id = e.team_id AND m.user_id = p.user_id
	LEFT JOIN master_tools t ON t.id = e.master_tool_id
	WHERE p.user_id = $1
	  AND (e.master_tool_id IS NULL OR t.id IS NOT NULL)`

func (s *PGStore) ListRecent(ctx context.Context, userID string, limit int) ([]*Preference, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.query(ctx, "preference.ListRecent",
		`SELECT `+prefColumns+` `+visiblePrefs+` AND p.last_used_at IS NOT NULL
		 ORDER BY p.last_used_at DESC, p.team_shelf_tool_id
		 LIMIT $2`, userID, limit)
}

func (s *PGStore) ListPinned(ctx context.Context, userID string) ([]*Preference, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.query(ctx, "preference.ListPinned",
		`SELECT `+prefColumns+` `+visiblePrefs+` AND p.is_pinned
		 ORDER BY p.last_used_at DESC NULLS LAST, p.team_shelf_tool_id`, userID)
}

func (s *PGStore) ListForEntries(ctx context.Context, userID string, entryIDs []string) ([]*Preference, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.query(ctx, "preference.ListForEntries",
		`SELECT `+prefColumns+` FROM user_tool_preferences p
		 WHERE p.user_id = $1 AND p.team_shelf_tool_id = ANY($2::uuid[])`, userID, entryIDs)
}

func (s *PGStore) query(ctx context.Context, op, query string, args ...any) ([]*Preference, error) {
	rows, err := s.db.Q().Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(op, fmt.Errorf("querying preferences: %w", err), msgEntryNotFound, "")
	}
	defer rows.Close()

	var prefs []*Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, db.Classify(op, fmt.Errorf("scanning preference: %w", err), msgEntryNotFound, "")
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(op, fmt.Errorf("iterating preferences: %w", err), msgEntryNotFound, "")
	}
	return prefs, nil
}
