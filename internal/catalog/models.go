package catalog

import "time"

// Tool is a master catalog entry. Regular callers only read these.
type Tool struct {
	ID           string    `json:"id" yaml:"-"`
	Title        string    `json:"title" yaml:"title"`
	Description  string    `json:"description" yaml:"description"`
	ExternalLink string    `json:"external_link" yaml:"external_link"`
	Category     string    `json:"category" yaml:"category"`
	Tags         []string  `json:"tags" yaml:"tags"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
}

// CreateToolInput holds the fields required to create a catalog tool.
type CreateToolInput struct {
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description" yaml:"description"`
	ExternalLink string   `json:"external_link" yaml:"external_link"`
	Category     string   `json:"category" yaml:"category"`
	Tags         []string `json:"tags" yaml:"tags"`
}

// ListParams controls listing and pagination of tools.
type ListParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}
