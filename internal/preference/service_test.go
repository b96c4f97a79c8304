package preference_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/memstore"
	"github.com/alecgard/toolshelf/internal/preference"
	"github.com/alecgard/toolshelf/internal/shelf"
	"github.com/alecgard/toolshelf/internal/team"
)

// fakeClock advances one minute per reading so every touch is distinct.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

type fixture struct {
	mem   *memstore.Store
	shelf *shelf.Service
	svc   *preference.Service
	infra string
	web   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := memstore.New()
	cat := catalog.NewService(mem.Catalog())
	f := &fixture{mem: mem}
	f.shelf = shelf.NewService(mem.Shelf(), mem.Teams(), cat, preference.NewShelfAdapter(mem.Preferences()))
	f.svc = preference.NewService(mem.Preferences(), mem.Shelf(), mem.Teams(), f.shelf.Resolver())
	clock := &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	preference.SetClock(f.svc, clock.Now)

	infra, _, err := mem.Teams().CreateWithAdmin(ctx, "Infra", "alice")
	if err != nil {
		t.Fatalf("creating team: %v", err)
	}
	web, _, _ := mem.Teams().CreateWithAdmin(ctx, "Web", "alice")
	f.infra, f.web = infra.ID, web.ID
	if _, err := mem.Teams().AddMember(ctx, infra.ID, "bob", team.RoleViewer); err != nil {
		t.Fatalf("adding bob: %v", err)
	}
	return f
}

func (f *fixture) custom(t *testing.T, teamID, title string) *shelf.Entry {
	t.Helper()
	e, err := f.shelf.AddCustomEntry(context.Background(), "alice", teamID, shelf.CustomEntry{
		Title:        title,
		ExternalLink: "https://" + title + ".example.com",
	})
	if err != nil {
		t.Fatalf("adding %s: %v", title, err)
	}
	return e
}

func titles(tools []shelf.ResolvedTool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.Title
	}
	return out
}

// --- TogglePin tests ---

func TestTogglePinTwiceRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.custom(t, f.infra, "wiki")

	first, err := f.svc.TogglePin(ctx, "bob", e.ID)
	if err != nil || !first {
		t.Fatalf("first toggle = %v, %v", first, err)
	}
	second, err := f.svc.TogglePin(ctx, "bob", e.ID)
	if err != nil || second {
		t.Fatalf("second toggle = %v, %v", second, err)
	}
	if n := f.mem.PreferenceCount("bob", e.ID); n != 1 {
		t.Errorf("expected exactly one preference row, got %d", n)
	}
}

func TestPreferenceAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	web := f.custom(t, f.web, "deploys")

	if _, err := f.svc.TogglePin(ctx, "bob", web.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("pin outside team: expected authorization error, got %v", err)
	}
	if err := f.svc.Touch(ctx, "bob", web.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("touch outside team: expected authorization error, got %v", err)
	}
	if err := f.svc.Touch(ctx, "bob", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("touch unknown entry: expected not found, got %v", err)
	}
	if _, err := f.svc.TogglePin(ctx, "bob", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("pin unknown entry: expected not found, got %v", err)
	}
}

// --- RecentTools tests ---

func TestRecentToolsLimitAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var entries []*shelf.Entry
	for i := 0; i < 7; i++ {
		entries = append(entries, f.custom(t, f.infra, fmt.Sprintf("tool%d", i)))
	}
	for _, e := range entries {
		if err := f.svc.Touch(ctx, "alice", e.ID); err != nil {
			t.Fatalf("Touch: %v", err)
		}
	}
	// Re-touch the first so it becomes the most recent.
	f.svc.Touch(ctx, "alice", entries[0].ID)

	recent, err := f.svc.RecentTools(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("RecentTools: %v", err)
	}
	if len(recent) != preference.DefaultRecentLimit {
		t.Fatalf("expected %d recent tools, got %d", preference.DefaultRecentLimit, len(recent))
	}
	want := []string{"tool0", "tool6", "tool5", "tool4", "tool3"}
	for i, w := range want {
		if recent[i].Title != w {
			t.Fatalf("recent = %v, want %v", titles(recent), want)
		}
	}
	for i := 1; i < len(recent); i++ {
		if !recent[i-1].LastUsedAt.After(*recent[i].LastUsedAt) {
			t.Fatalf("recent not strictly descending at %d", i)
		}
	}
	if recent[0].TeamName != "Infra" {
		t.Errorf("team name = %q", recent[0].TeamName)
	}

	two, _ := f.svc.RecentTools(ctx, "alice", 2)
	if len(two) != 2 {
		t.Errorf("limit 2 returned %d", len(two))
	}
	all, _ := f.svc.RecentTools(ctx, "alice", 1000)
	if len(all) != 7 {
		t.Errorf("large limit returned %d", len(all))
	}
}

func TestRecentToolsAcrossTeamsAndPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wiki := f.custom(t, f.infra, "wiki")
	deploys := f.custom(t, f.web, "deploys")

	f.svc.Touch(ctx, "alice", wiki.ID)
	f.svc.Touch(ctx, "alice", deploys.ID)

	recent, _ := f.svc.RecentTools(ctx, "alice", 5)
	if len(recent) != 2 || recent[0].TeamName != "Web" || recent[1].TeamName != "Infra" {
		t.Errorf("alice recent = %+v", recent)
	}
	bobRecent, _ := f.svc.RecentTools(ctx, "bob", 5)
	if len(bobRecent) != 0 {
		t.Errorf("bob sees alice's recency: %v", titles(bobRecent))
	}
}

func TestRankingSkipsDanglingAndLeftTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wiki := f.custom(t, f.infra, "wiki")
	gone := f.custom(t, f.infra, "gone")

	f.svc.Touch(ctx, "bob", wiki.ID)
	f.svc.Touch(ctx, "bob", gone.ID)
	f.svc.TogglePin(ctx, "bob", gone.ID)
	f.mem.DeleteEntry(gone.ID)

	recent, err := f.svc.RecentTools(ctx, "bob", 5)
	if err != nil {
		t.Fatalf("RecentTools: %v", err)
	}
	if len(recent) != 1 || recent[0].Title != "wiki" {
		t.Errorf("recent = %v, want [wiki]", titles(recent))
	}
	pinned, _ := f.svc.PinnedTools(ctx, "bob")
	if len(pinned) != 0 {
		t.Errorf("pinned = %v, want none", titles(pinned))
	}

	m, _ := f.mem.Teams().GetMembershipFor(ctx, f.infra, "bob")
	if err := f.mem.Teams().DeleteMembership(ctx, m.ID); err != nil {
		t.Fatalf("removing bob: %v", err)
	}
	if recent, _ := f.svc.RecentTools(ctx, "bob", 5); len(recent) != 0 {
		t.Errorf("recent after leaving team = %v", titles(recent))
	}
}

func TestRankingSkipsDanglingCatalogRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e := f.custom(t, f.infra, fmt.Sprintf("tool%d", i))
		if err := f.svc.Touch(ctx, "alice", e.ID); err != nil {
			t.Fatalf("Touch: %v", err)
		}
	}
	tool, err := f.mem.Catalog().Create(ctx, catalog.CreateToolInput{Title: "Sentry", ExternalLink: "https://sentry.io"})
	if err != nil {
		t.Fatalf("creating tool: %v", err)
	}
	e, err := f.shelf.AddCatalogEntry(ctx, "alice", f.infra, tool.ID)
	if err != nil {
		t.Fatalf("AddCatalogEntry: %v", err)
	}
	f.svc.Touch(ctx, "alice", e.ID)
	if _, err := f.svc.TogglePin(ctx, "alice", e.ID); err != nil {
		t.Fatalf("TogglePin: %v", err)
	}
	f.mem.DeleteTool(tool.ID)

	// The dangling entry was the most recent; the limit is still filled
	// from live tools.
	recent, err := f.svc.RecentTools(ctx, "alice", 5)
	if err != nil {
		t.Fatalf("RecentTools: %v", err)
	}
	want := []string{"tool4", "tool3", "tool2", "tool1", "tool0"}
	if got := titles(recent); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("recent = %v, want %v", got, want)
	}

	pinned, err := f.svc.PinnedTools(ctx, "alice")
	if err != nil {
		t.Fatalf("PinnedTools: %v", err)
	}
	if len(pinned) != 0 {
		t.Errorf("pinned = %v, want none", titles(pinned))
	}
}

// --- PinnedTools tests ---

func TestPinnedToolsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.custom(t, f.infra, "never-used")
	b := f.custom(t, f.infra, "used-early")
	c := f.custom(t, f.web, "used-late")
	d := f.custom(t, f.infra, "unpinned")

	f.svc.Touch(ctx, "alice", b.ID)
	f.svc.Touch(ctx, "alice", c.ID)
	f.svc.Touch(ctx, "alice", d.ID)
	for _, e := range []*shelf.Entry{a, b, c} {
		if _, err := f.svc.TogglePin(ctx, "alice", e.ID); err != nil {
			t.Fatalf("TogglePin: %v", err)
		}
	}

	pinned, err := f.svc.PinnedTools(ctx, "alice")
	if err != nil {
		t.Fatalf("PinnedTools: %v", err)
	}
	want := []string{"used-late", "used-early", "never-used"}
	if len(pinned) != len(want) {
		t.Fatalf("pinned = %v, want %v", titles(pinned), want)
	}
	for i, w := range want {
		if pinned[i].Title != w || !pinned[i].IsPinned {
			t.Fatalf("pinned = %v, want %v", titles(pinned), want)
		}
	}
}
