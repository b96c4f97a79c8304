// Package preference keeps per-user pin and recency state over shelf
// entries and ranks a user's tools across teams.
package preference

import "time"

// Preference is one user's state for one shelf entry. A missing row means
// not pinned and never used.
type Preference struct {
	UserID     string     `json:"user_id"`
	EntryID    string     `json:"team_shelf_tool_id"`
	IsPinned   bool       `json:"is_pinned"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

const (
	DefaultRecentLimit = 5
	MaxRecentLimit     = 50
)
