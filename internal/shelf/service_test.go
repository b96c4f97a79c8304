package shelf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/memstore"
	"github.com/alecgard/toolshelf/internal/preference"
	"github.com/alecgard/toolshelf/internal/shelf"
	"github.com/alecgard/toolshelf/internal/team"
)

type fixture struct {
	mem    *memstore.Store
	svc    *shelf.Service
	prefs  *preference.Service
	teamID string
	admin  string
	viewer string
	out    string
	tools  map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := memstore.New()
	cat := catalog.NewService(mem.Catalog())

	f := &fixture{mem: mem, tools: map[string]string{}}
	f.svc = shelf.NewService(mem.Shelf(), mem.Teams(), cat, preference.NewShelfAdapter(mem.Preferences()))
	f.prefs = preference.NewService(mem.Preferences(), mem.Shelf(), mem.Teams(), f.svc.Resolver())

	f.admin, f.viewer, f.out = "u-admin", "u-viewer", "u-outsider"
	tm, _, err := mem.Teams().CreateWithAdmin(ctx, "Infra", f.admin)
	if err != nil {
		t.Fatalf("creating team: %v", err)
	}
	f.teamID = tm.ID
	if _, err := mem.Teams().AddMember(ctx, tm.ID, f.viewer, team.RoleViewer); err != nil {
		t.Fatalf("adding viewer: %v", err)
	}
	for _, in := range []catalog.CreateToolInput{
		{Title: "Grafana", Description: "Dashboards", ExternalLink: "https://grafana.com"},
		{Title: "figma", Description: "Design", ExternalLink: "https://figma.com"},
		{Title: "Linear", Description: "Issue tracking", ExternalLink: "https://linear.app"},
	} {
		tool, err := cat.Create(ctx, in)
		if err != nil {
			t.Fatalf("creating %s: %v", in.Title, err)
		}
		f.tools[in.Title] = tool.ID
	}
	return f
}

func titles(tools []shelf.ResolvedTool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.Title
	}
	return out
}

// --- AddCatalogEntry tests ---

func TestAddCatalogEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.AddCatalogEntry(ctx, f.viewer, f.teamID, f.tools["Grafana"])
	if err != nil {
		t.Fatalf("viewer adding to shelf: %v", err)
	}
	if e.Source() != shelf.SourceCatalog || e.AddedBy != f.viewer || e.Custom != nil {
		t.Errorf("unexpected entry: %+v", e)
	}

	_, err = f.svc.AddCatalogEntry(ctx, f.admin, f.teamID, f.tools["Grafana"])
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate: expected conflict, got %v", err)
	}
	_, err = f.svc.AddCatalogEntry(ctx, f.admin, f.teamID, "missing-tool")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown tool: expected not found, got %v", err)
	}
	_, err = f.svc.AddCatalogEntry(ctx, f.out, f.teamID, f.tools["Linear"])
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("outsider: expected authorization error, got %v", err)
	}
}

// --- AddCustomEntry tests ---

func TestAddCustomEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.AddCustomEntry(ctx, f.admin, f.teamID, shelf.CustomEntry{
		Title:        "<b>Runbook</b>",
		Description:  "On-call <script>alert(1)</script>notes",
		ExternalLink: "https://runbook.example.com",
		Category:     "ops",
	})
	if err != nil {
		t.Fatalf("AddCustomEntry: %v", err)
	}
	if e.CatalogRef != nil || e.Custom == nil {
		t.Fatalf("expected custom variant, got %+v", e)
	}
	if e.Custom.Title != "Runbook" || e.Custom.Description != "On-call notes" {
		t.Errorf("markup not stripped: %+v", e.Custom)
	}

	// Custom entries may share a title; only catalog refs are unique.
	if _, err := f.svc.AddCustomEntry(ctx, f.admin, f.teamID, shelf.CustomEntry{Title: "Runbook", ExternalLink: "https://runbook.example.com"}); err != nil {
		t.Errorf("second custom entry: %v", err)
	}

	tests := []struct {
		name string
		in   shelf.CustomEntry
	}{
		{"no title", shelf.CustomEntry{ExternalLink: "https://x.example"}},
		{"markup-only title", shelf.CustomEntry{Title: "<i></i>", ExternalLink: "https://x.example"}},
		{"no link", shelf.CustomEntry{Title: "x"}},
		{"relative link", shelf.CustomEntry{Title: "x", ExternalLink: "/wiki"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.AddCustomEntry(ctx, f.admin, f.teamID, tt.in); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	_, err = f.svc.AddCustomEntry(ctx, f.out, f.teamID, shelf.CustomEntry{Title: "x", ExternalLink: "https://x.example"})
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("outsider: expected authorization error, got %v", err)
	}
}

// --- ListShelf tests ---

func TestListShelfOrderAndPerUserPins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	grafana, _ := f.svc.AddCatalogEntry(ctx, f.admin, f.teamID, f.tools["Grafana"])
	f.svc.AddCatalogEntry(ctx, f.admin, f.teamID, f.tools["figma"])
	f.svc.AddCustomEntry(ctx, f.admin, f.teamID, shelf.CustomEntry{Title: "Argo", ExternalLink: "https://argo.example"})

	got, err := f.svc.ListShelf(ctx, f.admin, f.teamID)
	if err != nil {
		t.Fatalf("ListShelf: %v", err)
	}
	want := []string{"Argo", "figma", "Grafana"}
	for i, w := range want {
		if got[i].Title != w || got[i].IsPinned {
			t.Fatalf("admin shelf = %v, want %v unpinned", titles(got), want)
		}
	}

	if pinned, err := f.prefs.TogglePin(ctx, f.viewer, grafana.ID); err != nil || !pinned {
		t.Fatalf("TogglePin = %v, %v", pinned, err)
	}

	viewerShelf, _ := f.svc.ListShelf(ctx, f.viewer, f.teamID)
	if viewerShelf[0].Title != "Grafana" || !viewerShelf[0].IsPinned {
		t.Errorf("viewer shelf = %v, want Grafana pinned first", titles(viewerShelf))
	}
	adminShelf, _ := f.svc.ListShelf(ctx, f.admin, f.teamID)
	if adminShelf[0].Title != "Argo" || adminShelf[2].IsPinned {
		t.Errorf("admin shelf changed by viewer's pin: %v", titles(adminShelf))
	}

	if _, err := f.svc.ListShelf(ctx, f.out, f.teamID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("outsider: expected authorization error, got %v", err)
	}
}

func TestListShelfSkipsDanglingRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.AddCatalogEntry(ctx, f.admin, f.teamID, f.tools["Grafana"])
	f.svc.AddCatalogEntry(ctx, f.admin, f.teamID, f.tools["Linear"])
	f.mem.DeleteTool(f.tools["Linear"])

	got, err := f.svc.ListShelf(ctx, f.admin, f.teamID)
	if err != nil {
		t.Fatalf("ListShelf: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Grafana" {
		t.Errorf("shelf = %v, want [Grafana]", titles(got))
	}
}

// --- BrowseCatalog tests ---

func TestBrowseCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.AddCatalogEntry(ctx, f.admin, f.teamID, f.tools["figma"])

	all, err := f.svc.BrowseCatalog(ctx, f.out, "", "")
	if err != nil {
		t.Fatalf("BrowseCatalog: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected whole catalog, got %d", len(all))
	}
	for _, it := range all {
		if it.AlreadyOnShelf {
			t.Errorf("%s annotated without a team", it.Title)
		}
	}

	items, err := f.svc.BrowseCatalog(ctx, f.viewer, "DESIGN", f.teamID)
	if err != nil {
		t.Fatalf("BrowseCatalog: %v", err)
	}
	if len(items) != 1 || items[0].Title != "figma" || !items[0].AlreadyOnShelf {
		t.Errorf("design search = %+v", items)
	}

	if _, err := f.svc.BrowseCatalog(ctx, f.out, "", f.teamID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("outsider browsing for team: expected authorization error, got %v", err)
	}
}
