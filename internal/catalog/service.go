package catalog

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/telemetry"
)

// Service provides validated, cached access to the catalog Store.
type Service struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	onHit    func(hit bool)
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches search results in c for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil && ttl > 0 {
			s.cache = c
			s.cacheTTL = ttl
		}
	}
}

// WithCacheObserver reports each cache lookup.
func WithCacheObserver(fn func(hit bool)) Option {
	return func(s *Service) { s.onHit = fn }
}

// NewService creates a new Service wrapping the given Store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, cache: NopCache{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search returns tools whose title or description contains query,
// ignoring case. An empty query returns the whole catalog.
func (s *Service) Search(ctx context.Context, query string) (tools []*Tool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "catalog.Search")
	defer func() { telemetry.EndSpan(span, err) }()

	key := "search:" + strings.ToLower(strings.TrimSpace(query))
	if s.cacheTTL > 0 {
		if b, ok := s.cache.Get(ctx, key); ok {
			if err := json.Unmarshal(b, &tools); err == nil {
				s.observe(true)
				return tools, nil
			}
		}
		s.observe(false)
	}

	tools, err = s.store.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if s.cacheTTL > 0 {
		if b, err := json.Marshal(tools); err == nil {
			s.cache.Set(ctx, key, b, s.cacheTTL)
		}
	}
	return tools, nil
}

func (s *Service) observe(hit bool) {
	if s.onHit != nil {
		s.onHit(hit)
	}
}

// GetByID retrieves a tool by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Tool, error) {
	return s.store.GetByID(ctx, id)
}

// GetMany returns the tools that exist among ids.
func (s *Service) GetMany(ctx context.Context, ids []string) ([]*Tool, error) {
	return s.store.GetMany(ctx, ids)
}

// List returns a page of the catalog.
func (s *Service) List(ctx context.Context, params ListParams) ([]*Tool, string, error) {
	return s.store.List(ctx, params)
}

// Create validates the input and adds a tool to the catalog.
func (s *Service) Create(ctx context.Context, input CreateToolInput) (*Tool, error) {
	input = normalize(input)
	if err := ValidateInput("catalog.Create", input); err != nil {
		return nil, err
	}
	t, err := s.store.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return t, nil
}

// Upsert validates the input and creates or refreshes the tool with the
// same title.
func (s *Service) Upsert(ctx context.Context, input CreateToolInput) (*Tool, error) {
	input = normalize(input)
	if err := ValidateInput("catalog.Upsert", input); err != nil {
		return nil, err
	}
	t, err := s.store.Upsert(ctx, input)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return t, nil
}

func normalize(in CreateToolInput) CreateToolInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ExternalLink = strings.TrimSpace(in.ExternalLink)
	in.Category = strings.TrimSpace(in.Category)
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	in.Tags = tags
	return in
}

// ValidateInput checks that a tool has a title and an absolute http(s)
// link.
func ValidateInput(op string, in CreateToolInput) error {
	if in.Title == "" {
		return apperr.Validation(op, "title is required")
	}
	if !ValidLink(in.ExternalLink) {
		return apperr.Validation(op, "external_link must be an absolute http(s) URL")
	}
	return nil
}

// ValidLink reports whether link is a well-formed http or https URL with a
// host.
func ValidLink(link string) bool {
	if strings.TrimSpace(link) == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
