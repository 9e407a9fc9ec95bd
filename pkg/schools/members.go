package schools

import (
	"context"
	"database/sql"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

func memberResource(m *members.Member) rbac.Resource {
	res := rbac.Resource{Kind: rbac.ResourceMember, ID: m.ID}
	if m.SchoolID != nil {
		res.SchoolID = *m.SchoolID
	}
	return res
}

// CreateMember creates an INACTIVE account. School admins create SCHOOL_USER
// accounts in their own school; other roles need an APP_ADMIN. Emails listed
// as an admin of the member's school start as SCHOOL_ADMIN, and a SCHOOL_ADMIN
// account is added to its school's admin list.
func (s *Service) CreateMember(ctx context.Context, caller *members.Member, in NewMember) (*members.Member, error) {
	rs, err := s.enforcer.Roles(ctx, caller)
	if err != nil {
		return nil, err
	}

	if in.SchoolID == nil && !rs.IsAppAdmin() && rs.SchoolID != nil {
		id := *rs.SchoolID
		in.SchoolID = &id
	}
	if in.GlobalRole == "" {
		in.GlobalRole = members.RoleSchoolUser
	}

	res := rbac.Resource{Kind: rbac.ResourceMember}
	if in.SchoolID != nil {
		res.SchoolID = *in.SchoolID
	}
	if err := s.enforcer.Check(ctx, rs, rbac.ActionCreate, res); err != nil {
		return nil, err
	}
	if !rs.IsAppAdmin() && in.GlobalRole != members.RoleSchoolUser {
		return nil, apperr.Forbidden("only an app admin may create %s accounts", in.GlobalRole)
	}

	if in.SchoolID != nil {
		if _, err := s.store.GetSchool(ctx, *in.SchoolID); err != nil {
			return nil, err
		}
	}

	m := &members.Member{
		Email:      in.Email,
		FullName:   in.FullName,
		GlobalRole: in.GlobalRole,
		SchoolID:   in.SchoolID,
		Lifecycle:  lifecycle.Inactive,
	}
	email := members.NormalizeEmail(in.Email)
	switch {
	case m.GlobalRole == members.RoleSchoolAdmin && m.SchoolID == nil:
		return nil, apperr.Validation("role %s requires a school", m.GlobalRole)
	case m.GlobalRole == members.RoleSchoolUser && m.SchoolID != nil:
		listed, err := s.store.IsAdminOf(ctx, *m.SchoolID, email)
		if err != nil {
			return nil, err
		}
		if listed {
			m.GlobalRole = members.RoleSchoolAdmin
		}
	}

	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if m.GlobalRole == members.RoleSchoolAdmin {
			if err := s.store.WithTx(tx).EnsureAdminEmail(ctx, *m.SchoolID, email); err != nil {
				return err
			}
		}
		return s.members.WithTx(tx).Create(ctx, m, in.Password)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventTypeMemberCreate, rs.MemberID, m.SchoolID, nil, audit.ResourceTypeMember, m.ID, map[string]interface{}{
		"email": m.Email,
		"role":  string(m.GlobalRole),
	})
	return m, nil
}

// GetMember returns a member record
func (s *Service) GetMember(ctx context.Context, caller *members.Member, id int64) (*members.Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.enforcer.Enforce(ctx, caller, rbac.ActionRead, memberResource(m)); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers returns a school's members
func (s *Service) ListMembers(ctx context.Context, caller *members.Member, schoolID int64) ([]*members.Member, error) {
	res := rbac.Resource{Kind: rbac.ResourceMember, SchoolID: schoolID}
	if _, err := s.enforcer.Enforce(ctx, caller, rbac.ActionList, res); err != nil {
		return nil, err
	}
	return s.members.ListBySchool(ctx, schoolID)
}

// ActivateMember lets a member sign in
func (s *Service) ActivateMember(ctx context.Context, caller *members.Member, id int64) (*members.Member, error) {
	return s.setLifecycle(ctx, caller, id, rbac.ActionActivate, lifecycle.Active, audit.EventTypeMemberActivate)
}

// DeactivateMember soft-deletes a member
func (s *Service) DeactivateMember(ctx context.Context, caller *members.Member, id int64) (*members.Member, error) {
	return s.setLifecycle(ctx, caller, id, rbac.ActionDeactivate, lifecycle.Inactive, audit.EventTypeMemberDeactivate)
}

func (s *Service) setLifecycle(ctx context.Context, caller *members.Member, id int64, action rbac.Action, state lifecycle.State, eventType audit.EventType) (*members.Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, action, memberResource(m))
	if err != nil {
		return nil, err
	}
	if m.Lifecycle == state {
		return m, nil
	}

	if err := s.members.SetLifecycle(ctx, id, state); err != nil {
		return nil, err
	}
	m.Lifecycle = state
	s.enforcer.Invalidate(ctx, id)

	s.record(ctx, eventType, rs.MemberID, m.SchoolID, nil, audit.ResourceTypeMember, id, nil)
	return m, nil
}

// SetGlobalRole changes a member's global role. APP_ADMIN only. Granting
// SCHOOL_ADMIN lists the member's email on their school; demoting a SCHOOL_ADMIN
// to SCHOOL_USER removes it from that list.
func (s *Service) SetGlobalRole(ctx context.Context, caller *members.Member, id int64, role members.GlobalRole) (*members.Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionSetRole, memberResource(m))
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid global role: %q", role)
	}
	if role != members.RoleAppAdmin && m.SchoolID == nil {
		return nil, apperr.Validation("role %s requires a school", role)
	}

	previous := m.GlobalRole
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		switch {
		case role == members.RoleSchoolAdmin:
			if err := store.EnsureAdminEmail(ctx, *m.SchoolID, m.Email); err != nil {
				return err
			}
		case role == members.RoleSchoolUser && previous == members.RoleSchoolAdmin:
			if err := store.RemoveAdminEmail(ctx, *m.SchoolID, m.Email); err != nil {
				return err
			}
		}
		return s.members.WithTx(tx).SetGlobalRole(ctx, id, role)
	})
	if err != nil {
		return nil, err
	}
	m.GlobalRole = role
	s.enforcer.Invalidate(ctx, id)

	s.record(ctx, audit.EventTypeMemberRoleChange, rs.MemberID, m.SchoolID, nil, audit.ResourceTypeMember, id, map[string]interface{}{
		"from": string(previous),
		"to":   string(role),
	})
	return m, nil
}

// DeleteMember permanently removes a member and their grants. APP_ADMIN only.
func (s *Service) DeleteMember(ctx context.Context, caller *members.Member, id int64) error {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionDelete, memberResource(m))
	if err != nil {
		return err
	}
	if rs.MemberID == id {
		return apperr.InvalidState("members cannot delete themselves")
	}

	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.grants.WithTx(tx).DeleteForMember(ctx, id); err != nil {
			return err
		}
		return s.members.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.enforcer.Invalidate(ctx, id)

	s.record(ctx, audit.EventTypeMemberDelete, rs.MemberID, m.SchoolID, nil, audit.ResourceTypeMember, id, map[string]interface{}{
		"email": m.Email,
	})
	return nil
}
