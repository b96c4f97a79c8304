package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/db"
)

// Store persists master catalog tools.
type Store interface {
	// Search matches query as a case-insensitive substring of title or
	// description. An empty query matches everything.
	Search(ctx context.Context, query string) ([]*Tool, error)
	GetByID(ctx context.Context, id string) (*Tool, error)
	GetMany(ctx context.Context, ids []string) ([]*Tool, error)
	List(ctx context.Context, params ListParams) ([]*Tool, string, error)
	Create(ctx context.Context, input CreateToolInput) (*Tool, error)
	// Upsert creates the tool or refreshes the one with the same title.
	Upsert(ctx context.Context, input CreateToolInput) (*Tool, error)
}

const msgToolNotFound = "tool not found"

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	db *db.DB
}

// NewPGStore creates a new catalog store backed by d.
func NewPGStore(d *db.DB) *PGStore {
	return &PGStore{db: d}
}

// toolColumns is the full list of columns used in SELECT statements.
const toolColumns = `id, title, description, external_link, category, tags, created_at`

// scanTool scans a single tool row into a Tool struct.
func scanTool(row pgx.Row) (*Tool, error) {
	var t Tool
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.ExternalLink,
		&t.Category,
		&t.Tags,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

func (s *PGStore) queryTools(ctx context.Context, op, query string, args ...any) ([]*Tool, error) {
	rows, err := s.db.Q().Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(op, fmt.Errorf("querying tools: %w", err), msgToolNotFound, "")
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, db.Classify(op, fmt.Errorf("scanning tool: %w", err), msgToolNotFound, "")
		}
		tools = append(tools, t)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(op, fmt.Errorf("iterating tools: %w", err), msgToolNotFound, "")
	}
	return tools, nil
}

// escapeLike quotes the LIKE metacharacters in a user query.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PGStore) Search(ctx context.Context, query string) ([]*Tool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	query = strings.TrimSpace(query)
	if query == "" {
		return s.queryTools(ctx, "catalog.Search",
			`SELECT `+toolColumns+` FROM master_tools ORDER BY lower(title), id`)
	}
	return s.queryTools(ctx, "catalog.Search",
		`SELECT `+toolColumns+` FROM master_tools
		 WHERE title ILIKE $1 OR description ILIKE $1
		 ORDER BY lower(title), id`,
		"%"+escapeLike(query)+"%")
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*Tool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	t, err := scanTool(s.db.Q().QueryRow(ctx,
		`SELECT `+toolColumns+` FROM master_tools WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify("catalog.GetByID", fmt.Errorf("getting tool: %w", err), msgToolNotFound, "")
	}
	return t, nil
}

// GetMany returns the tools that exist among ids, in no particular order.
func (s *PGStore) GetMany(ctx context.Context, ids []string) ([]*Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	return s.queryTools(ctx, "catalog.GetMany",
		`SELECT `+toolColumns+` FROM master_tools WHERE id = ANY($1::uuid[])`, ids)
}

// encodeCursor produces a base64-encoded cursor from a timestamp and ID.
func encodeCursor(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", createdAt.Format(time.RFC3339Nano), id)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses a base64-encoded cursor into a timestamp and ID.
func decodeCursor(cursor string) (time.Time, string, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor timestamp: %w", err)
	}
	return t, parts[1], nil
}

// List returns a page of tools ordered by created_at DESC, id DESC with
// cursor-based pagination.
func (s *PGStore) List(ctx context.Context, params ListParams) ([]*Tool, string, error) {
	const op = "catalog.List"
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	args := []any{}
	where := ""
	if params.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, "", apperr.Validation(op, "invalid cursor")
		}
		where = "WHERE (created_at, id) < ($1, $2)"
		args = append(args, cursorTime, cursorID)
	}
	args = append(args, limit+1) // fetch one extra to determine next cursor

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	tools, err := s.queryTools(ctx, op, fmt.Sprintf(
		`SELECT %s FROM master_tools %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		toolColumns, where, len(args)), args...)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(tools) > limit {
		last := tools[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
		tools = tools[:limit]
	}
	return tools, nextCursor, nil
}

func (s *PGStore) Create(ctx context.Context, input CreateToolInput) (*Tool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	t, err := scanTool(s.db.Q().QueryRow(ctx,
		`INSERT INTO master_tools (title, description, external_link, category, tags)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+toolColumns,
		input.Title, input.Description, input.ExternalLink, input.Category, tagsOrEmpty(input.Tags)))
	if err != nil {
		return nil, db.Classify("catalog.Create", fmt.Errorf("creating tool: %w", err), msgToolNotFound, "a tool with that title already exists")
	}
	return t, nil
}

func (s *PGStore) Upsert(ctx context.Context, input CreateToolInput) (*Tool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	t, err := scanTool(s.db.Q().QueryRow(ctx,
		`INSERT INTO master_tools (title, description, external_link, category, tags)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (title) DO UPDATE SET
		   description = EXCLUDED.description,
		   external_link = EXCLUDED.external_link,
		   category = EXCLUDED.category,
		   tags = EXCLUDED.tags
		 RETURNING `+toolColumns,
		input.Title, input.Description, input.ExternalLink, input.Category, tagsOrEmpty(input.Tags)))
	if err != nil {
		return nil, db.Classify("catalog.Upsert", fmt.Errorf("upserting tool: %w", err), msgToolNotFound, "")
	}
	return t, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
