package schools

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// Service implements school, club and member administration for a caller
type Service struct {
	db       *sql.DB
	store    *Store
	members  *members.Store
	grants   *rbac.Store
	enroll   *rbac.GrantService
	enforcer *rbac.Enforcer
	audit    *audit.Recorder
}

// NewService creates a tenancy service. All stores must share db.
func NewService(db *sql.DB, store *Store, memberStore *members.Store, grants *rbac.Store, grantService *rbac.GrantService, enforcer *rbac.Enforcer) *Service {
	return &Service{
		db:       db,
		store:    store,
		members:  memberStore,
		grants:   grants,
		enroll:   grantService,
		enforcer: enforcer,
	}
}

// WithAudit records tenancy changes
func (s *Service) WithAudit(rec *audit.Recorder) *Service {
	s.audit = rec
	return s
}

func schoolResource(id int64) rbac.Resource {
	return rbac.Resource{Kind: rbac.ResourceSchool, ID: id, SchoolID: id}
}

// CreateSchool creates a school and promotes its listed admins. APP_ADMIN only.
func (s *Service) CreateSchool(ctx context.Context, caller *members.Member, name string, adminEmails []string) (*School, error) {
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionCreate, rbac.Resource{Kind: rbac.ResourceSchool})
	if err != nil {
		return nil, err
	}

	name, err = normalizeName(name)
	if err != nil {
		return nil, apperr.Validation("school %s", err.Error())
	}
	emails, err := normalizeEmails(adminEmails)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	school := &School{Name: name, Lifecycle: lifecycle.Active}
	var changed []int64
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		if err := store.CreateSchool(ctx, school); err != nil {
			return err
		}
		changed, err = applyAdminChanges(ctx, store, s.members.WithTx(tx), school.ID, emails, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	school.AdminEmails = emails
	s.enforcer.Invalidate(ctx, changed...)

	s.record(ctx, audit.EventTypeSchoolCreate, rs.MemberID, &school.ID, nil, audit.ResourceTypeSchool, school.ID, map[string]interface{}{
		"name": school.Name,
	})
	return school, nil
}

// GetSchool returns a school with its admin emails
func (s *Service) GetSchool(ctx context.Context, caller *members.Member, id int64) (*School, error) {
	school, err := s.store.GetSchool(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.enforcer.Enforce(ctx, caller, rbac.ActionRead, schoolResource(id)); err != nil {
		return nil, err
	}
	return school, nil
}

// ListSchools returns every school to an APP_ADMIN and the caller's own school otherwise
func (s *Service) ListSchools(ctx context.Context, caller *members.Member) ([]*School, error) {
	rs, err := s.enforcer.Roles(ctx, caller)
	if err != nil {
		return nil, err
	}
	if rs.IsAppAdmin() {
		return s.store.ListSchools(ctx)
	}
	if rs.SchoolID == nil {
		return []*School{}, nil
	}
	school, err := s.store.GetSchool(ctx, *rs.SchoolID)
	if errors.Is(err, apperr.ErrNotFound) {
		return []*School{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !rs.IsSchoolAdminOf(school.ID) {
		school.AdminEmails = nil
	}
	return []*School{school}, nil
}

// SetAdminEmails replaces a school's admin list. Added members of this school
// holding SCHOOL_USER are promoted to SCHOOL_ADMIN; members of other schools keep
// their role. Removed members are demoted to SCHOOL_USER unless another school
// still lists them.
func (s *Service) SetAdminEmails(ctx context.Context, caller *members.Member, schoolID int64, adminEmails []string) (*School, error) {
	school, err := s.store.GetSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionManageAdmins, schoolResource(schoolID))
	if err != nil {
		return nil, err
	}
	emails, err := normalizeEmails(adminEmails)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	added, removed := diffEmails(school.AdminEmails, emails)
	if len(added) == 0 && len(removed) == 0 {
		return school, nil
	}

	var changed []int64
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		changed, err = applyAdminChanges(ctx, s.store.WithTx(tx), s.members.WithTx(tx), schoolID, added, removed)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.enforcer.Invalidate(ctx, changed...)

	s.record(ctx, audit.EventTypeSchoolAdminsChange, rs.MemberID, &schoolID, nil, audit.ResourceTypeSchool, schoolID, map[string]interface{}{
		"added":   added,
		"removed": removed,
	})
	return s.store.GetSchool(ctx, schoolID)
}

// AddAdminEmail appends one email to the admin list
func (s *Service) AddAdminEmail(ctx context.Context, caller *members.Member, schoolID int64, email string) (*School, error) {
	school, err := s.store.GetSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	return s.SetAdminEmails(ctx, caller, schoolID, append(school.AdminEmails, email))
}

// RemoveAdminEmail drops one email from the admin list
func (s *Service) RemoveAdminEmail(ctx context.Context, caller *members.Member, schoolID int64, email string) (*School, error) {
	school, err := s.store.GetSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	email = members.NormalizeEmail(email)
	next := make([]string, 0, len(school.AdminEmails))
	for _, e := range school.AdminEmails {
		if e != email {
			next = append(next, e)
		}
	}
	return s.SetAdminEmails(ctx, caller, schoolID, next)
}

// DeleteSchool removes a school with its clubs, their grants and records, and its
// admin list (demoting admins no other school lists). APP_ADMIN only.
func (s *Service) DeleteSchool(ctx context.Context, caller *members.Member, id int64) error {
	school, err := s.store.GetSchool(ctx, id)
	if err != nil {
		return err
	}
	rs, err := s.enforcer.Enforce(ctx, caller, rbac.ActionDelete, schoolResource(id))
	if err != nil {
		return err
	}

	var changed []int64
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.WithTx(tx)
		grants := s.grants.WithTx(tx)

		clubs, err := store.ListClubs(ctx, id)
		if err != nil {
			return err
		}
		for _, club := range clubs {
			ids, err := grants.DeleteForClub(ctx, club.ID)
			if err != nil {
				return err
			}
			changed = append(changed, ids...)
			if err := store.DeleteClub(ctx, club.ID); err != nil {
				return err
			}
		}

		demoted, err := applyAdminChanges(ctx, store, s.members.WithTx(tx), id, nil, school.AdminEmails)
		if err != nil {
			return err
		}
		changed = append(changed, demoted...)

		return store.DeleteSchool(ctx, id)
	})
	if err != nil {
		return err
	}
	s.enforcer.Invalidate(ctx, changed...)

	observability.FromContext(ctx).WithField("school_id", id).Info("school deleted")
	s.record(ctx, audit.EventTypeSchoolDelete, rs.MemberID, &id, nil, audit.ResourceTypeSchool, id, map[string]interface{}{
		"name": school.Name,
	})
	return nil
}

// applyAdminChanges writes the admin list diff and adjusts global roles.
// Only members of schoolID are promoted. APP_ADMIN members are never promoted or demoted.
func applyAdminChanges(ctx context.Context, store *Store, memberStore *members.Store, schoolID int64, added, removed []string) ([]int64, error) {
	var changed []int64

	for _, email := range added {
		if err := store.AddAdminEmail(ctx, schoolID, email); err != nil {
			return nil, err
		}
		m, err := memberStore.GetByEmail(ctx, email)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if m.GlobalRole == members.RoleSchoolUser && m.InSchool(schoolID) {
			if err := memberStore.SetGlobalRole(ctx, m.ID, members.RoleSchoolAdmin); err != nil {
				return nil, err
			}
			changed = append(changed, m.ID)
		}
	}

	for _, email := range removed {
		if err := store.RemoveAdminEmail(ctx, schoolID, email); err != nil {
			return nil, err
		}
		m, err := memberStore.GetByEmail(ctx, email)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if m.GlobalRole != members.RoleSchoolAdmin {
			continue
		}
		elsewhere, err := store.IsAdminElsewhere(ctx, email, schoolID)
		if err != nil {
			return nil, err
		}
		if elsewhere {
			continue
		}
		if err := memberStore.SetGlobalRole(ctx, m.ID, members.RoleSchoolUser); err != nil {
			return nil, err
		}
		changed = append(changed, m.ID)
	}

	return changed, nil
}

func (s *Service) record(ctx context.Context, eventType audit.EventType, actorID int64, schoolID, clubID *int64, resourceType audit.ResourceType, resourceID int64, metadata map[string]interface{}) {
	s.audit.Record(ctx, &audit.Event{
		EventType:    eventType,
		ActorID:      &actorID,
		SchoolID:     schoolID,
		ClubID:       clubID,
		ResourceType: resourceType,
		ResourceID:   strconv.FormatInt(resourceID, 10),
		Metadata:     metadata,
	})
}
