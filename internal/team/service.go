package team

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alecgard/toolshelf/internal/apperr"
	"github.com/alecgard/toolshelf/internal/telemetry"
)

const maxNameLen = 120

// Service enforces membership rules over a Store.
type Service struct {
	store Store
}

// NewService creates a new Service wrapping the given Store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// RequireMember returns userID's membership of teamID, or an authorization
// error when there is none. A missing team is indistinguishable from a team
// the caller does not belong to.
func RequireMember(ctx context.Context, members MembershipReader, op, teamID, userID string) (*Membership, error) {
	m, err := members.GetMembershipFor(ctx, teamID, userID)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindValidation:
			return nil, apperr.Authorization(op, "you are not a member of this team")
		}
		return nil, apperr.WithOp(op, err)
	}
	return m, nil
}

// RequireAdmin is RequireMember plus a role check.
func RequireAdmin(ctx context.Context, members MembershipReader, op, teamID, userID string) (*Membership, error) {
	m, err := members.GetMembershipFor(ctx, teamID, userID)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindValidation:
			return nil, apperr.Authorization(op, "only team admins can do this")
		}
		return nil, apperr.WithOp(op, err)
	}
	if m.Role != RoleAdmin {
		return nil, apperr.Authorization(op, "only team admins can do this")
	}
	return m, nil
}

// CreateTeam creates a team with the creator as its first admin.
func (s *Service) CreateTeam(ctx context.Context, creatorID, name string) (t *Team, err error) {
	const op = "team.CreateTeam"
	ctx, span := telemetry.StartSpan(ctx, op)
	defer func() { telemetry.EndSpan(span, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation(op, "team name is required")
	}
	if len(name) > maxNameLen {
		return nil, apperr.Validation(op, "team name is too long")
	}
	t, _, err = s.store.CreateWithAdmin(ctx, name, creatorID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("team.id", t.ID))
	return t, nil
}

// ListTeams returns the teams userID belongs to, ordered by name.
func (s *Service) ListTeams(ctx context.Context, userID string) ([]*Team, error) {
	return s.store.ListForUser(ctx, userID)
}

// GetTeam returns a team the caller belongs to.
func (s *Service) GetTeam(ctx context.Context, actorID, teamID string) (*Team, error) {
	const op = "team.GetTeam"
	if _, err := RequireMember(ctx, s.store, op, teamID, actorID); err != nil {
		return nil, err
	}
	return s.store.GetTeam(ctx, teamID)
}

// ListMembers returns a team's members with their emails. Any member may
// look.
func (s *Service) ListMembers(ctx context.Context, actorID, teamID string) ([]*Member, error) {
	const op = "team.ListMembers"
	if _, err := RequireMember(ctx, s.store, op, teamID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, teamID)
}

// Membership returns userID's membership of teamID.
func (s *Service) Membership(ctx context.Context, teamID, userID string) (*Membership, error) {
	return RequireMember(ctx, s.store, "team.Membership", teamID, userID)
}

// ChangeRole sets the role of a membership. The actor must be an admin of
// that membership's team. The membership is looked up first, so an unknown
// id is NotFound for any actor.
func (s *Service) ChangeRole(ctx context.Context, actorID, membershipID, role string) (m *Membership, err error) {
	const op = "team.ChangeRole"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("membership.id", membershipID))
	defer func() { telemetry.EndSpan(span, err) }()

	target, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if _, err := RequireAdmin(ctx, s.store, op, target.TeamID, actorID); err != nil {
		return nil, err
	}
	r, ok := ParseRole(role)
	if !ok {
		return nil, apperr.Validation(op, "role must be one of: admin, editor, viewer")
	}
	if r == target.Role {
		return target, nil
	}
	return s.store.UpdateRole(ctx, membershipID, r)
}

// RemoveMember deletes a membership. The actor must be an admin of that
// membership's team. Errors are ordered as in ChangeRole.
func (s *Service) RemoveMember(ctx context.Context, actorID, membershipID string) (removed *Membership, err error) {
	const op = "team.RemoveMember"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("membership.id", membershipID))
	defer func() { telemetry.EndSpan(span, err) }()

	target, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if _, err := RequireAdmin(ctx, s.store, op, target.TeamID, actorID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteMembership(ctx, membershipID); err != nil {
		return nil, err
	}
	return target, nil
}
