package rbac

import (
	"context"
	"strconv"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// ClubLookup resolves a club id to the fields the guard needs
type ClubLookup interface {
	LookupClub(ctx context.Context, clubID int64) (*ClubRef, error)
}

// GrantService manages club role grants on behalf of a caller
type GrantService struct {
	store    *Store
	members  MemberLookup
	clubs    ClubLookup
	enforcer *Enforcer
	audit    *audit.Recorder
}

// NewGrantService creates a grant service
func NewGrantService(store *Store, members MemberLookup, clubs ClubLookup, enforcer *Enforcer) *GrantService {
	return &GrantService{store: store, members: members, clubs: clubs, enforcer: enforcer}
}

// WithAudit records grants, revocations and enrollments
func (s *GrantService) WithAudit(rec *audit.Recorder) *GrantService {
	s.audit = rec
	return s
}

// GrantClubRole gives memberID the role in clubID. Re-granting updates the
// existing grant and reactivates it.
func (s *GrantService) GrantClubRole(ctx context.Context, caller *members.Member, memberID, clubID int64, role ClubRole) (*Grant, error) {
	club, err := s.clubs.LookupClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, ActionManageRoles, ClubResource(club))
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid club role: %q", role)
	}

	target, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive() {
		return nil, apperr.InvalidState("member %d is not active", memberID)
	}
	if target.GlobalRole != members.RoleAppAdmin && !target.InSchool(club.SchoolID) {
		return nil, apperr.Validation("member %d does not belong to the club's school", memberID)
	}

	g := &Grant{
		MemberID:  memberID,
		ClubID:    club.ID,
		SchoolID:  club.SchoolID,
		Role:      role,
		GrantedBy: &rs.MemberID,
	}
	if err := s.store.Upsert(ctx, g); err != nil {
		return nil, err
	}
	s.enforcer.Invalidate(ctx, memberID)

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"member_id": memberID,
		"club_id":   clubID,
		"role":      string(role),
	}).Info("club role granted")
	s.record(ctx, audit.EventTypeAuthzRoleGrant, rs.MemberID, g, string(role))

	return g, nil
}

// RevokeClubRole soft-deletes the grant. It reports false when there was no active grant.
func (s *GrantService) RevokeClubRole(ctx context.Context, caller *members.Member, memberID, clubID int64) (bool, error) {
	club, err := s.clubs.LookupClub(ctx, clubID)
	if err != nil {
		return false, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, ActionManageRoles, ClubResource(club))
	if err != nil {
		return false, err
	}

	revoked, err := s.store.Deactivate(ctx, memberID, clubID)
	if err != nil {
		return false, err
	}
	if !revoked {
		return false, nil
	}
	s.enforcer.Invalidate(ctx, memberID)

	s.record(ctx, audit.EventTypeAuthzRoleRevoke, rs.MemberID, &Grant{
		MemberID: memberID,
		ClubID:   club.ID,
		SchoolID: club.SchoolID,
	}, "")
	return true, nil
}

// ListClubGrants returns the active grants of a club
func (s *GrantService) ListClubGrants(ctx context.Context, caller *members.Member, clubID int64) ([]*Grant, error) {
	club, err := s.clubs.LookupClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if _, err := s.enforcer.Enforce(ctx, caller, ActionRead, ClubResource(club)); err != nil {
		return nil, err
	}
	return s.store.ListForClub(ctx, clubID)
}

// Enroll lets a school member join an active club of their school as CLUB_USER.
// A previously revoked grant is reactivated as CLUB_USER.
func (s *GrantService) Enroll(ctx context.Context, caller *members.Member, clubID int64) (*Grant, error) {
	club, err := s.clubs.LookupClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, ActionEnroll, ClubResource(club))
	if err != nil {
		return nil, err
	}

	g := &Grant{
		MemberID:  rs.MemberID,
		ClubID:    club.ID,
		SchoolID:  club.SchoolID,
		Role:      ClubUser,
		GrantedBy: &rs.MemberID,
	}
	if err := s.store.Upsert(ctx, g); err != nil {
		return nil, err
	}
	s.enforcer.Invalidate(ctx, rs.MemberID)

	s.record(ctx, audit.EventTypeAuthzEnroll, rs.MemberID, g, string(ClubUser))
	return g, nil
}

func (s *GrantService) record(ctx context.Context, eventType audit.EventType, actorID int64, g *Grant, role string) {
	schoolID, clubID := g.SchoolID, g.ClubID
	event := &audit.Event{
		EventType:    eventType,
		ActorID:      &actorID,
		SchoolID:     &schoolID,
		ClubID:       &clubID,
		ResourceType: audit.ResourceTypeGrant,
		ResourceID:   strconv.FormatInt(g.MemberID, 10),
	}
	if role != "" {
		event.Metadata = map[string]interface{}{"role": role}
	}
	s.audit.Record(ctx, event)
}
