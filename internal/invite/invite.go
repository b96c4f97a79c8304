// Package invite implements team admission: an admin adds an existing
// identity to their team as a viewer.
package invite

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/team"
	"github.com/alecgard/toolshelf/internal/telemetry"
	"github.com/alecgard/toolshelf/internal/user"
)

// Request is the invite payload.
type Request struct {
	TeamID string `json:"team_id"`
	Email  string `json:"email"`
}

// Result is a completed admission: the new membership and the admin who
// granted it.
type Result struct {
	Membership *team.Membership
	Inviter    *auth.Identity
}

// Members is the part of the team store admission touches.
type Members interface {
	team.MembershipReader
	AddMember(ctx context.Context, teamID, userID string, role team.Role) (*team.Membership, error)
}

// Service runs the admission steps in a fixed order and stops at the first
// failure: validate input, resolve the caller, require the caller be an
// admin of the team, resolve the invitee, insert a viewer membership.
type Service struct {
	resolver  auth.Resolver
	members   Members
	directory auth.Directory
}

func NewService(resolver auth.Resolver, members Members, directory auth.Directory) *Service {
	return &Service{resolver: resolver, members: members, directory: directory}
}

// Invite admits req.Email to req.TeamID on behalf of the holder of
// credential. Concurrent duplicates are settled by the store's uniqueness
// constraint: one succeeds, the rest see a conflict.
func (s *Service) Invite(ctx context.Context, credential string, req Request) (res *Result, err error) {
	const op = "invite.Invite"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("team.id", req.TeamID))
	defer func() { telemetry.EndSpan(span, err) }()

	teamID := strings.TrimSpace(req.TeamID)
	email := user.NormalizeEmail(req.Email)
	if teamID == "" {
		return nil, apperr.Validation(op, "team_id is required")
	}
	if !user.ValidEmail(email) {
		return nil, apperr.Validation(op, "a valid email is required")
	}

	caller, err := s.resolver.Resolve(ctx, credential)
	if err != nil {
		return nil, apperr.WithOp(op, err)
	}

	if _, err := team.RequireAdmin(ctx, s.members, op, teamID, caller.UserID); err != nil {
		return nil, err
	}

	invitee, err := s.directory.LookupByEmail(ctx, email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound(op, "no user with that email")
		}
		return nil, apperr.WithOp(op, err)
	}

	m, err := s.members.AddMember(ctx, teamID, invitee.UserID, team.RoleViewer)
	if err != nil {
		return nil, err
	}
	return &Result{Membership: m, Inviter: caller}, nil
}
