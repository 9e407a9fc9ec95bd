package schools

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// CreateClub creates an active club in schoolID
func (s *Service) CreateClub(ctx context.Context, caller *members.Member, schoolID int64, name, description string) (*Club, error) {
	school, err := s.store.GetSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionCreate, rbac.Resource{Kind: rbac.ResourceClub, SchoolID: schoolID})
	if err != nil {
		return nil, err
	}
	if school.Lifecycle != lifecycle.Active {
		return nil, apperr.InvalidState("school %d is not active", schoolID)
	}

	name, err = normalizeName(name)
	if err != nil {
		return nil, apperr.Validation("club %s", err.Error())
	}

	club := &Club{
		SchoolID:    schoolID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Lifecycle:   lifecycle.Active,
	}
	if err := s.store.CreateClub(ctx, club); err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventTypeClubCreate, rs.MemberID, &club.SchoolID, &club.ID, audit.ResourceTypeClub, club.ID, map[string]interface{}{
		"name": club.Name,
	})
	return club, nil
}

// GetClub returns a club the caller may see
func (s *Service) GetClub(ctx context.Context, caller *members.Member, id int64) (*Club, error) {
	club, err := s.store.GetClub(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.enforcer.Enforce(ctx, caller, rbac.ActionRead, rbac.ClubResource(club.Ref())); err != nil {
		return nil, err
	}
	return club, nil
}

// ListClubs returns the clubs of a school
func (s *Service) ListClubs(ctx context.Context, caller *members.Member, schoolID int64) ([]*Club, error) {
	if _, err := s.store.GetSchool(ctx, schoolID); err != nil {
		return nil, err
	}
	res := rbac.Resource{Kind: rbac.ResourceClub, SchoolID: schoolID}
	if _, err := s.enforcer.Enforce(ctx, caller, rbac.ActionList, res); err != nil {
		return nil, err
	}
	return s.store.ListClubs(ctx, schoolID)
}

// EditClub applies upd. Only the club's CLUB_ADMIN (or an APP_ADMIN) may edit.
func (s *Service) EditClub(ctx context.Context, caller *members.Member, id int64, upd ClubUpdate) (*Club, error) {
	club, err := s.store.GetClub(ctx, id)
	if err != nil {
		return nil, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionEdit, rbac.ClubResource(club.Ref()))
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if club.Name, err = normalizeName(*upd.Name); err != nil {
			return nil, apperr.Validation("club %s", err.Error())
		}
	}
	if upd.Description != nil {
		club.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Lifecycle != nil {
		if !upd.Lifecycle.Valid() {
			return nil, apperr.Validation("invalid lifecycle state: %q", *upd.Lifecycle)
		}
		club.Lifecycle = *upd.Lifecycle
	}

	if err := s.store.UpdateClub(ctx, club); err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventTypeClubUpdate, rs.MemberID, &club.SchoolID, &club.ID, audit.ResourceTypeClub, club.ID, nil)
	return club, nil
}

// DeleteClub removes a club, bulk-deleting its grants and records
func (s *Service) DeleteClub(ctx context.Context, caller *members.Member, id int64) error {
	club, err := s.store.GetClub(ctx, id)
	if err != nil {
		return err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionDelete, rbac.ClubResource(club.Ref()))
	if err != nil {
		return err
	}

	var affected []int64
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		affected, err = s.grants.WithTx(tx).DeleteForClub(ctx, id)
		if err != nil {
			return err
		}
		return s.store.WithTx(tx).DeleteClub(ctx, id)
	})
	if err != nil {
		return err
	}
	s.enforcer.Invalidate(ctx, affected...)

	s.record(ctx, audit.EventTypeClubDelete, rs.MemberID, &club.SchoolID, &club.ID, audit.ResourceTypeClub, club.ID, map[string]interface{}{
		"name":           club.Name,
		"grants_removed": len(affected),
	})
	return nil
}

// Enroll joins the caller to a club as CLUB_USER
func (s *Service) Enroll(ctx context.Context, caller *members.Member, clubID int64) (*rbac.Grant, error) {
	return s.enroll.Enroll(ctx, caller, clubID)
}
