package preference

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alecgard/toolshelf/internal/shelf"
	"github.com/alecgard/toolshelf/internal/team"
	"github.com/alecgard/toolshelf/internal/telemetry"
)

// Entries is the slice of the shelf store the ranking engine reads.
type Entries interface {
	Get(ctx context.Context, id string) (*shelf.Entry, error)
	GetMany(ctx context.Context, ids []string) ([]*shelf.Entry, error)
}

// Teams supplies team names for ranked rows.
type Teams interface {
	team.MembershipReader
	GetMany(ctx context.Context, ids []string) ([]*team.Team, error)
}

// Service implements pinning, recency and the cross-team rankings.
type Service struct {
	store    Store
	entries  Entries
	teams    Teams
	resolver *shelf.Resolver
	now      func() time.Time
}

func NewService(store Store, entries Entries, teams Teams, resolver *shelf.Resolver) *Service {
	return &Service{
		store:    store,
		entries:  entries,
		teams:    teams,
		resolver: resolver,
		now:      time.Now,
	}
}

// authorize loads the entry and checks the actor belongs to its team.
func (s *Service) authorize(ctx context.Context, op, actorID, entryID string) (*shelf.Entry, error) {
	e, err := s.entries.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if _, err := team.RequireMember(ctx, s.teams, op, e.TeamID, actorID); err != nil {
		return nil, err
	}
	return e, nil
}

// Touch records that the actor just used an entry.
func (s *Service) Touch(ctx context.Context, actorID, entryID string) (err error) {
	const op = "preference.Touch"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("entry.id", entryID))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := s.authorize(ctx, op, actorID, entryID); err != nil {
		return err
	}
	return s.store.Touch(ctx, actorID, entryID, s.now().UTC())
}

// TogglePin flips the actor's pin on an entry and returns the new state.
func (s *Service) TogglePin(ctx context.Context, actorID, entryID string) (pinned bool, err error) {
	const op = "preference.TogglePin"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("entry.id", entryID))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := s.authorize(ctx, op, actorID, entryID); err != nil {
		return false, err
	}
	return s.store.TogglePin(ctx, actorID, entryID)
}

// RecentTools returns the actor's most recently used tools across all
// their teams. limit <= 0 means DefaultRecentLimit.
func (s *Service) RecentTools(ctx context.Context, actorID string, limit int) (tools []shelf.ResolvedTool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "preference.RecentTools")
	defer func() { telemetry.EndSpan(span, err) }()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	prefs, err := s.store.ListRecent(ctx, actorID, limit)
	if err != nil {
		return nil, err
	}
	tools, err = s.rank(ctx, prefs)
	if err != nil {
		return nil, err
	}
	if len(tools) > limit {
		tools = tools[:limit]
	}
	return tools, nil
}

// PinnedTools returns every tool the actor pinned, most recently used first.
func (s *Service) PinnedTools(ctx context.Context, actorID string) (tools []shelf.ResolvedTool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "preference.PinnedTools")
	defer func() { telemetry.EndSpan(span, err) }()

	prefs, err := s.store.ListPinned(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, prefs)
}

// rank resolves preferences into display rows in the order given, dropping
// any whose entry or catalog tool has gone.
func (s *Service) rank(ctx context.Context, prefs []*Preference) ([]shelf.ResolvedTool, error) {
	if len(prefs) == 0 {
		return []shelf.ResolvedTool{}, nil
	}
	ids := make([]string, len(prefs))
	for i, p := range prefs {
		ids[i] = p.EntryID
	}

	found, err := s.entries.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*shelf.Entry, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}

	ordered := make([]*shelf.Entry, 0, len(prefs))
	prefByEntry := make(map[string]*Preference, len(prefs))
	var teamIDs []string
	seenTeam := map[string]bool{}
	for _, p := range prefs {
		e, ok := byID[p.EntryID]
		if !ok {
			continue
		}
		ordered = append(ordered, e)
		prefByEntry[e.ID] = p
		if !seenTeam[e.TeamID] {
			seenTeam[e.TeamID] = true
			teamIDs = append(teamIDs, e.TeamID)
		}
	}

	resolved, err := s.resolver.Resolve(ctx, ordered)
	if err != nil {
		return nil, err
	}

	teams, err := s.teams.GetMany(ctx, teamIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}

	for i := range resolved {
		p := prefByEntry[resolved[i].EntryID]
		resolved[i].IsPinned = p.IsPinned
		resolved[i].LastUsedAt = p.LastUsedAt
		resolved[i].TeamName = names[resolved[i].TeamID]
	}
	return resolved, nil
}

// ShelfAdapter exposes the store as the shelf's PreferenceReader.
type ShelfAdapter struct {
	store Store
}

func NewShelfAdapter(store Store) *ShelfAdapter {
	return &ShelfAdapter{store: store}
}

func (a *ShelfAdapter) ForEntries(ctx context.Context, userID string, entryIDs []string) (map[string]shelf.UserState, error) {
	prefs, err := a.store.ListForEntries(ctx, userID, entryIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]shelf.UserState, len(prefs))
	for _, p := range prefs {
		out[p.EntryID] = shelf.UserState{IsPinned: p.IsPinned, LastUsedAt: p.LastUsedAt}
	}
	return out, nil
}
