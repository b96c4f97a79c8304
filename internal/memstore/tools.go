package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/preference"
	"github.com/alecgard/toolshelf/internal/shelf"
)

// --- catalog ---

type catalogStore struct{ s *Store }

func copyTool(t *catalog.Tool) *catalog.Tool {
	c := *t
	c.Tags = append([]string{}, t.Tags...)
	return &c
}

func sortTools(tools []*catalog.Tool) {
	sort.Slice(tools, func(i, j int) bool {
		a, b := strings.ToLower(tools[i].Title), strings.ToLower(tools[j].Title)
		if a != b {
			return a < b
		}
		return tools[i].ID < tools[j].ID
	})
}

func (st catalogStore) Search(_ context.Context, query string) ([]*catalog.Tool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	var out []*catalog.Tool
	for _, t := range s.tools {
		if q == "" || strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, copyTool(t))
		}
	}
	sortTools(out)
	return out, nil
}

func (st catalogStore) GetByID(_ context.Context, id string) (*catalog.Tool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tools[id]
	if !ok {
		return nil, apperr.NotFound("catalog.GetByID", "tool not found")
	}
	return copyTool(t), nil
}

func (st catalogStore) GetMany(_ context.Context, ids []string) ([]*catalog.Tool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.Tool
	for _, id := range ids {
		if t, ok := s.tools[id]; ok {
			out = append(out, copyTool(t))
		}
	}
	return out, nil
}

func (st catalogStore) List(_ context.Context, params catalog.ListParams) ([]*catalog.Tool, string, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*catalog.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		all = append(all, copyTool(t))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start := 0
	if params.Cursor != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].ID > params.Cursor })
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	end := start + limit
	next := ""
	if end < len(all) {
		next = all[end-1].ID
	} else {
		end = len(all)
	}
	return all[start:end], next, nil
}

func (st catalogStore) Create(_ context.Context, in catalog.CreateToolInput) (*catalog.Tool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tools {
		if t.Title == in.Title {
			return nil, apperr.Conflict("catalog.Create", "a tool with that title already exists")
		}
	}
	t := s.newTool(in)
	s.tools[t.ID] = t
	return copyTool(t), nil
}

func (st catalogStore) Upsert(_ context.Context, in catalog.CreateToolInput) (*catalog.Tool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tools {
		if t.Title == in.Title {
			t.Description = in.Description
			t.ExternalLink = in.ExternalLink
			t.Category = in.Category
			t.Tags = append([]string{}, in.Tags...)
			return copyTool(t), nil
		}
	}
	t := s.newTool(in)
	s.tools[t.ID] = t
	return copyTool(t), nil
}

// newTool must be called with s.mu held.
func (s *Store) newTool(in catalog.CreateToolInput) *catalog.Tool {
	tags := append([]string{}, in.Tags...)
	return &catalog.Tool{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		ExternalLink: in.ExternalLink,
		Category:     in.Category,
		Tags:         tags,
		CreatedAt:    s.now(),
	}
}

// --- shelf ---

type shelfStore struct{ s *Store }

func copyEntry(e *shelf.Entry) *shelf.Entry {
	c := *e
	if e.CatalogRef != nil {
		ref := *e.CatalogRef
		c.CatalogRef = &ref
	}
	if e.Custom != nil {
		custom := *e.Custom
		c.Custom = &custom
	}
	return &c
}

func (st shelfStore) Add(_ context.Context, e *shelf.Entry) (*shelf.Entry, error) {
	const op = "shelf.Add"
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := e.Validate(); err != nil {
		return nil, apperr.WithOp(op, err)
	}
	if _, ok := s.teams[e.TeamID]; !ok {
		return nil, apperr.NotFound(op, "team or tool not found")
	}
	if e.CatalogRef != nil {
		if _, ok := s.tools[e.CatalogRef.MasterToolID]; !ok {
			return nil, apperr.NotFound(op, "team or tool not found")
		}
		for _, other := range s.entries {
			if other.TeamID == e.TeamID && other.CatalogRef != nil &&
				other.CatalogRef.MasterToolID == e.CatalogRef.MasterToolID {
				return nil, apperr.Conflict(op, "this tool is already on the team's shelf")
			}
		}
	}
	stored := copyEntry(e)
	stored.ID = uuid.NewString()
	stored.CreatedAt = s.now()
	s.entries[stored.ID] = stored
	return copyEntry(stored), nil
}

func (st shelfStore) Get(_ context.Context, id string) (*shelf.Entry, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, apperr.NotFound("shelf.Get", "shelf entry not found")
	}
	return copyEntry(e), nil
}

func (st shelfStore) GetMany(_ context.Context, ids []string) ([]*shelf.Entry, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*shelf.Entry
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

func (st shelfStore) ListForTeam(_ context.Context, teamID string) ([]*shelf.Entry, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*shelf.Entry
	for _, e := range s.entries {
		if e.TeamID == teamID {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st shelfStore) CatalogToolIDs(_ context.Context, teamID string) ([]string, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.TeamID == teamID && e.CatalogRef != nil {
			out = append(out, e.CatalogRef.MasterToolID)
		}
	}
	return out, nil
}

// --- preferences ---

type prefStore struct{ s *Store }

func copyPref(p *preference.Preference) *preference.Preference {
	c := *p
	if p.LastUsedAt != nil {
		t := *p.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// upsertPref must be called with s.mu held.
func (s *Store) upsertPref(op, userID, entryID string) (*preference.Preference, error) {
	if _, ok := s.entries[entryID]; !ok {
		return nil, apperr.NotFound(op, "shelf entry not found")
	}
	k := prefKey{userID, entryID}
	p, ok := s.prefs[k]
	if !ok {
		p = &preference.Preference{UserID: userID, EntryID: entryID}
		s.prefs[k] = p
	}
	return p, nil
}

func (st prefStore) Touch(_ context.Context, userID, entryID string, at time.Time) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.upsertPref("preference.Touch", userID, entryID)
	if err != nil {
		return err
	}
	p.LastUsedAt = &at
	return nil
}

func (st prefStore) TogglePin(_ context.Context, userID, entryID string) (bool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.upsertPref("preference.TogglePin", userID, entryID)
	if err != nil {
		return false, err
	}
	p.IsPinned = !p.IsPinned
	return p.IsPinned, nil
}

// visiblePrefs must be called with s.mu held. It drops preferences whose
// entry, membership or catalog tool is gone, before any limit applies.
func (s *Store) visiblePrefs(userID string, keep func(*preference.Preference) bool) []*preference.Preference {
	var out []*preference.Preference
	for k, p := range s.prefs {
		if k.userID != userID || !keep(p) {
			continue
		}
		e, ok := s.entries[k.entryID]
		if !ok || s.membershipFor(e.TeamID, userID) == nil {
			continue
		}
		if e.CatalogRef != nil {
			if _, ok := s.tools[e.CatalogRef.MasterToolID]; !ok {
				continue
			}
		}
		out = append(out, copyPref(p))
	}
	return out
}

func (st prefStore) ListRecent(_ context.Context, userID string, limit int) ([]*preference.Preference, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.visiblePrefs(userID, func(p *preference.Preference) bool { return p.LastUsedAt != nil })
	sort.Slice(out, func(i, j int) bool {
		a, b := *out[i].LastUsedAt, *out[j].LastUsedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].EntryID < out[j].EntryID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st prefStore) ListPinned(_ context.Context, userID string) ([]*preference.Preference, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.visiblePrefs(userID, func(p *preference.Preference) bool { return p.IsPinned })
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastUsedAt, out[j].LastUsedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out, nil
}

func (st prefStore) ListForEntries(_ context.Context, userID string, entryIDs []string) ([]*preference.Preference, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*preference.Preference
	for _, id := range entryIDs {
		if p, ok := s.prefs[prefKey{userID, id}]; ok {
			out = append(out, copyPref(p))
		}
	}
	return out, nil
}
