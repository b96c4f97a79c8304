package shelf

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alecgard/toolshelf/internal/team"
	"github.com/alecgard/toolshelf/internal/telemetry"
)

// PreferenceReader supplies one user's state for a set of entries.
type PreferenceReader interface {
	ForEntries(ctx context.Context, userID string, entryIDs []string) (map[string]UserState, error)
}

// Service implements the shelf operations. Any member of a team, whatever
// the role, may read and add to its shelf.
type Service struct {
	store    Store
	members  team.MembershipReader
	catalog  Catalog
	prefs    PreferenceReader
	resolver *Resolver
}

// NewService wires the shelf. prefs may be nil, in which case every tool is
// reported unpinned and unused.
func NewService(store Store, members team.MembershipReader, c Catalog, prefs PreferenceReader) *Service {
	return &Service{
		store:    store,
		members:  members,
		catalog:  c,
		prefs:    prefs,
		resolver: NewResolver(c),
	}
}

// Resolver returns the resolver the service uses.
func (s *Service) Resolver() *Resolver { return s.resolver }

// BrowseCatalog searches the master catalog. With a teamID, the caller must
// be a member and each item says whether the team already shelves it.
func (s *Service) BrowseCatalog(ctx context.Context, actorID, query, teamID string) (items []CatalogItem, err error) {
	const op = "shelf.BrowseCatalog"
	ctx, span := telemetry.StartSpan(ctx, op)
	defer func() { telemetry.EndSpan(span, err) }()

	onShelf := map[string]bool{}
	if teamID != "" {
		if _, err := team.RequireMember(ctx, s.members, op, teamID, actorID); err != nil {
			return nil, err
		}
		ids, err := s.store.CatalogToolIDs(ctx, teamID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			onShelf[id] = true
		}
	}

	tools, err := s.catalog.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	items = make([]CatalogItem, 0, len(tools))
	for _, t := range tools {
		items = append(items, CatalogItem{Tool: t, AlreadyOnShelf: onShelf[t.ID]})
	}
	return items, nil
}

// AddCatalogEntry puts a master tool on a team's shelf.
func (s *Service) AddCatalogEntry(ctx context.Context, actorID, teamID, masterToolID string) (e *Entry, err error) {
	const op = "shelf.AddCatalogEntry"
	ctx, span := telemetry.StartSpan(ctx, op,
		attribute.String("team.id", teamID),
		attribute.String("master_tool.id", masterToolID))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := team.RequireMember(ctx, s.members, op, teamID, actorID); err != nil {
		return nil, err
	}
	e = &Entry{TeamID: teamID, AddedBy: actorID, CatalogRef: &CatalogRef{MasterToolID: masterToolID}}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetByID(ctx, masterToolID); err != nil {
		return nil, err
	}
	return s.store.Add(ctx, e)
}

// AddCustomEntry puts a team-defined tool on the shelf. Markup is stripped
// from the free-text fields.
func (s *Service) AddCustomEntry(ctx context.Context, actorID, teamID string, in CustomEntry) (e *Entry, err error) {
	const op = "shelf.AddCustomEntry"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("team.id", teamID))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := team.RequireMember(ctx, s.members, op, teamID, actorID); err != nil {
		return nil, err
	}
	custom := sanitizeCustom(in)
	e = &Entry{TeamID: teamID, AddedBy: actorID, Custom: &custom}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return s.store.Add(ctx, e)
}

// ListShelf returns the team's resolved shelf as the caller sees it: their
// own pins and recency attached, pinned first, then by title.
func (s *Service) ListShelf(ctx context.Context, actorID, teamID string) (tools []ResolvedTool, err error) {
	const op = "shelf.ListShelf"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("team.id", teamID))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := team.RequireMember(ctx, s.members, op, teamID, actorID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListForTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	tools, err = s.resolver.Resolve(ctx, entries)
	if err != nil {
		return nil, err
	}

	if s.prefs != nil && len(tools) > 0 {
		ids := make([]string, len(tools))
		for i, t := range tools {
			ids[i] = t.EntryID
		}
		states, err := s.prefs.ForEntries(ctx, actorID, ids)
		if err != nil {
			return nil, err
		}
		for i := range tools {
			st := states[tools[i].EntryID]
			tools[i].IsPinned = st.IsPinned
			tools[i].LastUsedAt = st.LastUsedAt
		}
	}

	SortShelf(tools)
	return tools, nil
}
