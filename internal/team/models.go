package team

import (
	"strings"
	"time"
)

// Role is a member's permission level within one team.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole returns the Role named by s. The match is case-insensitive.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return r, true
	}
	return "", false
}

// Team is a named group sharing a shelf. OwnerID records the creator; it
// grants nothing by itself.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership links a user to a team with a role.
type Membership struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a membership as shown on the team settings page.
type Member struct {
	Membership
	Email string `json:"email"`
}
