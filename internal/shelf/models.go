// Package shelf composes a team's shelf from catalog references and custom
// entries.
package shelf

import (
	"strings"
	"time"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/catalog"
)

// Source names which variant an entry is.
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceCustom  Source = "custom"
)

// CatalogRef points an entry at a master catalog tool.
type CatalogRef struct {
	MasterToolID string `json:"master_tool_id"`
}

// CustomEntry is a tool defined inline by a team.
type CustomEntry struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ExternalLink string `json:"external_link"`
	Category     string `json:"category"`
}

// Entry is one item on a team's shelf. Exactly one of CatalogRef and Custom
// is set.
type Entry struct {
	ID         string       `json:"id"`
	TeamID     string       `json:"team_id"`
	AddedBy    string       `json:"added_by_user_id"`
	CatalogRef *CatalogRef  `json:"catalog_ref,omitempty"`
	Custom     *CustomEntry `json:"custom,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Source reports the entry's variant.
func (e *Entry) Source() Source {
	if e.CatalogRef != nil {
		return SourceCatalog
	}
	return SourceCustom
}

// Validate rejects entries with both or neither variant, and custom entries
// missing a title or a usable link.
func (e *Entry) Validate() error {
	const op = "shelf.Entry.Validate"
	switch {
	case e.CatalogRef != nil && e.Custom != nil:
		return apperr.Validation(op, "an entry is either a catalog reference or a custom tool, not both")
	case e.CatalogRef == nil && e.Custom == nil:
		return apperr.Validation(op, "an entry needs a catalog reference or custom tool fields")
	case e.CatalogRef != nil:
		if strings.TrimSpace(e.CatalogRef.MasterToolID) == "" {
			return apperr.Validation(op, "master_tool_id is required")
		}
	default:
		if strings.TrimSpace(e.Custom.Title) == "" {
			return apperr.Validation(op, "title is required")
		}
		if !catalog.ValidLink(e.Custom.ExternalLink) {
			return apperr.Validation(op, "external_link must be an absolute http(s) URL")
		}
	}
	return nil
}

// ResolvedTool is a shelf entry with its display fields filled in and the
// viewing user's preference attached.
type ResolvedTool struct {
	EntryID      string     `json:"entry_id"`
	TeamID       string     `json:"team_id"`
	TeamName     string     `json:"team_name,omitempty"`
	Source       Source     `json:"source"`
	MasterToolID string     `json:"master_tool_id,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ExternalLink string     `json:"external_link"`
	Category     string     `json:"category"`
	Tags         []string   `json:"tags,omitempty"`
	IsPinned     bool       `json:"is_pinned"`
	LastUsedAt   *time.Time `json:"last_used_at"`
}

// CatalogItem is a catalog tool annotated for the team being browsed for.
type CatalogItem struct {
	*catalog.Tool
	AlreadyOnShelf bool `json:"already_on_shelf"`
}

// UserState is one user's pin and recency for one entry. The zero value
// means never pinned, never used.
type UserState struct {
	IsPinned   bool
	LastUsedAt *time.Time
}
