package shelf

import (
	"context"
	"sort"
	"strings"

	"github.com/alecgard/toolshelf/internal/catalog"
)

// Catalog is the slice of the catalog the shelf reads.
type Catalog interface {
	Search(ctx context.Context, query string) ([]*catalog.Tool, error)
	GetByID(ctx context.Context, id string) (*catalog.Tool, error)
	GetMany(ctx context.Context, ids []string) ([]*catalog.Tool, error)
}

// Resolver turns entries into display rows. Catalog references take the
// master tool's fields; custom entries use their own. References to tools
// that no longer exist are dropped.
type Resolver struct {
	catalog Catalog
}

func NewResolver(c Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Resolve preserves the order of entries.
func (r *Resolver) Resolve(ctx context.Context, entries []*Entry) ([]ResolvedTool, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.CatalogRef != nil && !seen[e.CatalogRef.MasterToolID] {
			seen[e.CatalogRef.MasterToolID] = true
			ids = append(ids, e.CatalogRef.MasterToolID)
		}
	}

	tools := make(map[string]*catalog.Tool, len(ids))
	if len(ids) > 0 {
		found, err := r.catalog.GetMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			tools[t.ID] = t
		}
	}

	out := make([]ResolvedTool, 0, len(entries))
	for _, e := range entries {
		rt := ResolvedTool{EntryID: e.ID, TeamID: e.TeamID, Source: e.Source()}
		switch {
		case e.CatalogRef != nil:
			t, ok := tools[e.CatalogRef.MasterToolID]
			if !ok {
				continue
			}
			rt.MasterToolID = t.ID
			rt.Title = t.Title
			rt.Description = t.Description
			rt.ExternalLink = t.ExternalLink
			rt.Category = t.Category
			rt.Tags = t.Tags
		case e.Custom != nil:
			rt.Title = e.Custom.Title
			rt.Description = e.Custom.Description
			rt.ExternalLink = e.Custom.ExternalLink
			rt.Category = e.Custom.Category
		default:
			continue
		}
		out = append(out, rt)
	}
	return out, nil
}

// SortShelf orders pinned tools first, then by title ignoring case, then by
// entry id so equal titles have a stable order.
func SortShelf(tools []ResolvedTool) {
	sort.SliceStable(tools, func(i, j int) bool {
		a, b := tools[i], tools[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
		if at != bt {
			return at < bt
		}
		return a.EntryID < b.EntryID
	})
}

// Filter keeps tools whose title or description contains query, ignoring
// case. An empty query keeps everything.
func Filter(tools []ResolvedTool, query string) []ResolvedTool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return tools
	}
	out := make([]ResolvedTool, 0, len(tools))
	for _, t := range tools {
		if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, t)
		}
	}
	return out
}
