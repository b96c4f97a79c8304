package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/toolshelf/internal/apperr"
)

// --- fakes ---

type fakeStore struct {
	mu       sync.Mutex
	tools    []*Tool
	searches int
}

func (f *fakeStore) Search(_ context.Context, q string) ([]*Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	var out []*Tool
	for _, t := range f.tools {
		if q == "" || strings.Contains(strings.ToLower(t.Title), strings.ToLower(q)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*Tool, error) {
	for _, t := range f.tools {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, apperr.NotFound("fake", msgToolNotFound)
}

func (f *fakeStore) GetMany(ctx context.Context, ids []string) ([]*Tool, error) {
	var out []*Tool
	for _, id := range ids {
		if t, err := f.GetByID(ctx, id); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) List(context.Context, ListParams) ([]*Tool, string, error) {
	return f.tools, "", nil
}

func (f *fakeStore) Create(_ context.Context, in CreateToolInput) (*Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &Tool{ID: in.Title, Title: in.Title, Description: in.Description, ExternalLink: in.ExternalLink, Tags: in.Tags}
	f.tools = append(f.tools, t)
	return t, nil
}

func (f *fakeStore) Upsert(ctx context.Context, in CreateToolInput) (*Tool, error) {
	return f.Create(ctx, in)
}

type mapCache struct {
	mu          sync.Mutex
	m           map[string][]byte
	invalidated int
}

func newMapCache() *mapCache { return &mapCache{m: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

func (c *mapCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = map[string][]byte{}
	c.invalidated++
}

// --- validation tests ---

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateToolInput
		wantErr bool
	}{
		{"valid", CreateToolInput{Title: "Figma", ExternalLink: "https://figma.com"}, false},
		{"http allowed", CreateToolInput{Title: "Local", ExternalLink: "http://intranet.example/wiki"}, false},
		{"missing title", CreateToolInput{ExternalLink: "https://figma.com"}, true},
		{"missing link", CreateToolInput{Title: "Figma"}, true},
		{"relative link", CreateToolInput{Title: "Figma", ExternalLink: "/figma"}, true},
		{"no host", CreateToolInput{Title: "Figma", ExternalLink: "https://"}, true},
		{"javascript scheme", CreateToolInput{Title: "x", ExternalLink: "javascript:alert(1)"}, true},
		{"ftp scheme", CreateToolInput{Title: "x", ExternalLink: "ftp://files.example.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput("test", tt.input)
			if tt.wantErr && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateNormalizes(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	tool, err := svc.Create(context.Background(), CreateToolInput{
		Title:        "  Linear ",
		ExternalLink: " https://linear.app ",
		Tags:         []string{" pm ", "", "issues"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tool.Title != "Linear" || tool.ExternalLink != "https://linear.app" {
		t.Errorf("fields not trimmed: %+v", tool)
	}
	if len(tool.Tags) != 2 || tool.Tags[0] != "pm" {
		t.Errorf("tags = %v", tool.Tags)
	}
}

// --- cache tests ---

func TestSearchUsesCache(t *testing.T) {
	store := &fakeStore{tools: []*Tool{{ID: "1", Title: "Figma"}, {ID: "2", Title: "Linear"}}}
	cache := newMapCache()
	var hits, misses int
	svc := NewService(store, WithCache(cache, time.Minute), WithCacheObserver(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	ctx := context.Background()

	first, err := svc.Search(ctx, "fig")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := svc.Search(ctx, "  FIG ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.searches != 1 {
		t.Errorf("store searched %d times, want 1", store.searches)
	}
	if len(first) != 1 || len(second) != 1 || second[0].Title != "Figma" {
		t.Errorf("unexpected results: %v / %v", first, second)
	}
	if hits != 1 || misses != 1 {
		t.Errorf("hits=%d misses=%d", hits, misses)
	}

	// Writes invalidate.
	if _, err := svc.Create(ctx, CreateToolInput{Title: "Figjam", ExternalLink: "https://figma.com/figjam"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cache.invalidated != 1 {
		t.Errorf("invalidated %d times", cache.invalidated)
	}
	got, _ := svc.Search(ctx, "fig")
	if len(got) != 2 {
		t.Errorf("expected fresh results after invalidation, got %d", len(got))
	}
}

func TestSearchWithoutCache(t *testing.T) {
	store := &fakeStore{tools: []*Tool{{ID: "1", Title: "Figma"}}}
	svc := NewService(store, WithCache(nil, time.Minute))

	svc.Search(context.Background(), "")
	svc.Search(context.Background(), "")
	if store.searches != 2 {
		t.Errorf("store searched %d times, want 2", store.searches)
	}
}

// --- helpers ---

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"plain":  "plain",
		"50%":    `50\%`,
		"a_b":    `a\_b`,
		`back\s`: `back\\s`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncodeCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	id := "550e8400-e29b-41d4-a716-446655440000"

	gotTime, gotID, err := decodeCursor(encodeCursor(ts, id))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotTime.Equal(ts) {
		t.Errorf("time mismatch: got %v, want %v", gotTime, ts)
	}
	if gotID != id {
		t.Errorf("id mismatch: got %q, want %q", gotID, id)
	}
}

func TestDecodeCursorInvalid(t *testing.T) {
	for _, c := range []string{"not-valid-base64!!!", "bm9waXBl", "YmFkLXRpbWV8c29tZS1pZA=="} {
		if _, _, err := decodeCursor(c); err == nil {
			t.Errorf("decodeCursor(%q): expected error", c)
		}
	}
}
