package shelf

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/toolshelf/internal/db"
)

// Store persists shelf entries. Implementations reject a second catalog
// reference to the same tool on one team with a conflict.
type Store interface {
	Add(ctx context.Context, e *Entry) (*Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	GetMany(ctx context.Context, ids []string) ([]*Entry, error)
	ListForTeam(ctx context.Context, teamID string) ([]*Entry, error)
	// CatalogToolIDs returns the master tool ids a team already shelves.
	CatalogToolIDs(ctx context.Context, teamID string) ([]string, error)
}

const (
	msgEntryNotFound  = "shelf entry not found"
	msgAlreadyShelved = "this tool is already on the team's shelf"
)

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	db *db.DB
}

// NewPGStore creates a new shelf store backed by d.
func NewPGStore(d *db.DB) *PGStore {
	return &PGStore{db: d}
}

const entryColumns = `id, team_id, added_by_user_id, master_tool_id,
	custom_title, custom_description, custom_external_link, custom_category, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e                           Entry
		masterID                    *string
		title, desc, link, category *string
	)
	if err := row.Scan(&e.ID, &e.TeamID, &e.AddedBy, &masterID, &title, &desc, &link, &category, &e.CreatedAt); err != nil {
		return nil, err
	}
	if masterID != nil {
		e.CatalogRef = &CatalogRef{MasterToolID: *masterID}
	} else {
		e.Custom = &CustomEntry{
			Title:        deref(title),
			Description:  deref(desc),
			ExternalLink: deref(link),
			Category:     deref(category),
		}
	}
	return &e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Add inserts e. Duplicate catalog references trip the partial unique
// index on (team_id, master_tool_id).
func (s *PGStore) Add(ctx context.Context, e *Entry) (*Entry, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	var masterID, title, desc, link, category *string
	if e.CatalogRef != nil {
		masterID = &e.CatalogRef.MasterToolID
	}
	if e.Custom != nil {
		title = &e.Custom.Title
		desc = nullable(e.Custom.Description)
		link = &e.Custom.ExternalLink
		category = nullable(e.Custom.Category)
	}

	out, err := scanEntry(s.db.Q().QueryRow(ctx,
		`INSERT INTO team_shelf_tools
		   (team_id, added_by_user_id, master_tool_id,
		    custom_title, custom_description, custom_external_link, custom_category)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+entryColumns,
		e.TeamID, e.AddedBy, masterID, title, desc, link, category))
	if err != nil {
		return nil, db.Classify("shelf.Add", fmt.Errorf("adding shelf entry: %w", err), "team or tool not found", msgAlreadyShelved)
	}
	return out, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Entry, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	e, err := scanEntry(s.db.Q().QueryRow(ctx,
		`SELECT `+entryColumns+` FROM team_shelf_tools WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify("shelf.Get", fmt.Errorf("getting shelf entry: %w", err), msgEntryNotFound, "")
	}
	return e, nil
}

func (s *PGStore) GetMany(ctx context.Context, ids []string) ([]*Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.queryEntries(ctx, "shelf.GetMany",
		`SELECT `+entryColumns+` FROM team_shelf_tools WHERE id = ANY($1::uuid[])`, ids)
}

func (s *PGStore) ListForTeam(ctx context.Context, teamID string) ([]*Entry, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.queryEntries(ctx, "shelf.ListForTeam",
		`SELECT `+entryColumns+` FROM team_shelf_tools WHERE team_id = $1 ORDER BY created_at, id`, teamID)
}

func (s *PGStore) queryEntries(ctx context.Context, op, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.Q().Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(op, fmt.Errorf("querying shelf entries: %w", err), msgEntryNotFound, "")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, db.Classify(op, fmt.Errorf("scanning shelf entry: %w", err), msgEntryNotFound, "")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(op, fmt.Errorf("iterating shelf entries: %w", err), msgEntryNotFound, "")
	}
	return entries, nil
}

func (s *PGStore) CatalogToolIDs(ctx context.Context, teamID string) ([]string, error) {
	const op = "shelf.CatalogToolIDs"
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.Q().Query(ctx,
		`SELECT master_tool_id FROM team_shelf_tools
		 WHERE team_id = $1 AND master_tool_id IS NOT NULL`, teamID)
	if err != nil {
		return nil, db.Classify(op, fmt.Errorf("listing shelved tools: %w", err), msgEntryNotFound, "")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.Classify(op, fmt.Errorf("collecting shelved tools: %w", err), msgEntryNotFound, "")
	}
	return ids, nil
}
