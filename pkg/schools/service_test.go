package schools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

type fixture struct {
	svc      *Service
	store    *Store
	members  *members.Store
	grants   *rbac.Store
	resolver *rbac.Resolver
	admin    *members.Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := storage.NewTestDB(t)

	memberStore := members.NewStore(db).WithHashCost(bcrypt.MinCost)
	grants := rbac.NewStore(db)
	store := NewStore(db)
	resolver := rbac.NewResolver(memberStore, grants).WithCache(rbac.NewLRUCache(100, time.Minute))
	enforcer := rbac.NewEnforcer(resolver, rbac.NewGuard())
	grantService := rbac.NewGrantService(grants, memberStore, store, enforcer)
	rec := audit.NewRecorder(audit.NewNoOpLogger())

	admin := &members.Member{Email: "root@example.com", GlobalRole: members.RoleAppAdmin, Lifecycle: lifecycle.Active}
	require.NoError(t, memberStore.Create(ctx, admin, "password123"))

	return &fixture{
		svc:      NewService(db, store, memberStore, grants, grantService, enforcer).WithAudit(rec),
		store:    store,
		members:  memberStore,
		grants:   grants,
		resolver: resolver,
		admin:    admin,
	}
}

func (f *fixture) activeMember(t *testing.T, email string, schoolID int64) *members.Member {
	t.Helper()
	ctx := context.Background()
	m, err := f.svc.CreateMember(ctx, f.admin, NewMember{Email: email, Password: "password123", SchoolID: &schoolID})
	require.NoError(t, err)
	m, err = f.svc.ActivateMember(ctx, f.admin, m.ID)
	require.NoError(t, err)
	return m
}

func (f *fixture) reload(t *testing.T, id int64) *members.Member {
	t.Helper()
	m, err := f.members.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m
}

func TestCreateSchool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	school, err := f.svc.CreateSchool(ctx, f.admin, "  North High ", []string{"Head@North.example", "head@north.example"})
	require.NoError(t, err)
	assert.Equal(t, "North High", school.Name)
	assert.Equal(t, []string{"head@north.example"}, school.AdminEmails)

	_, err = f.svc.CreateSchool(ctx, f.admin, "North High", nil)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = f.svc.CreateSchool(ctx, f.admin, "   ", nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.CreateSchool(ctx, f.admin, "South", []string{"not-an-email"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	user := f.activeMember(t, "user@north.example", school.ID)
	_, err = f.svc.CreateSchool(ctx, user, "West", nil)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestAdminEmails_PromoteAndDemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	school, err := f.svc.CreateSchool(ctx, f.admin, "North", nil)
	require.NoError(t, err)
	user := f.activeMember(t, "teacher@north.example", school.ID)
	assert.Equal(t, members.RoleSchoolUser, user.GlobalRole)

	// warm the role cache so promotion must invalidate it
	_, err = f.resolver.Resolve(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.AddAdminEmail(ctx, f.admin, school.ID, "Teacher@North.example")
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolAdmin, f.reload(t, user.ID).GlobalRole)

	rs, err := f.resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.True(t, rs.IsSchoolAdminOf(school.ID))

	// the promoted admin may now manage the list, including removing themselves
	updated, err := f.svc.RemoveAdminEmail(ctx, user, school.ID, "teacher@north.example")
	require.NoError(t, err)
	assert.Empty(t, updated.AdminEmails)
	assert.Equal(t, members.RoleSchoolUser, f.reload(t, user.ID).GlobalRole)
}

// Scenario D: two schools share one admin email
func TestAdminEmails_SharedAcrossSchools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", nil)
	require.NoError(t, err)
	south, err := f.svc.CreateSchool(ctx, f.admin, "South", nil)
	require.NoError(t, err)

	shared := f.activeMember(t, "shared@example.com", north.ID)

	_, err = f.svc.SetAdminEmails(ctx, f.admin, north.ID, []string{"shared@example.com"})
	require.NoError(t, err)
	_, err = f.svc.SetAdminEmails(ctx, f.admin, south.ID, []string{"shared@example.com"})
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolAdmin, f.reload(t, shared.ID).GlobalRole)

	// still listed by South: no demotion
	_, err = f.svc.RemoveAdminEmail(ctx, f.admin, north.ID, "shared@example.com")
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolAdmin, f.reload(t, shared.ID).GlobalRole)

	// listed nowhere: demoted
	_, err = f.svc.RemoveAdminEmail(ctx, f.admin, south.ID, "shared@example.com")
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolUser, f.reload(t, shared.ID).GlobalRole)
}

func TestAdminEmails_Forbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", []string{"head@north.example"})
	require.NoError(t, err)
	south, err := f.svc.CreateSchool(ctx, f.admin, "South", nil)
	require.NoError(t, err)

	head := f.activeMember(t, "head@north.example", north.ID)
	assert.Equal(t, members.RoleSchoolAdmin, head.GlobalRole, "listed email starts as admin")

	_, err = f.svc.SetAdminEmails(ctx, head, south.ID, []string{"head@north.example"})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.svc.SetAdminEmails(ctx, head, 999, nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAdminEmails_OtherSchoolMemberKeepsRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", nil)
	require.NoError(t, err)
	south, err := f.svc.CreateSchool(ctx, f.admin, "South", []string{"head@south.example"})
	require.NoError(t, err)
	southHead := f.activeMember(t, "head@south.example", south.ID)
	northUser := f.activeMember(t, "user@north.example", north.ID)

	updated, err := f.svc.AddAdminEmail(ctx, southHead, south.ID, "user@north.example")
	require.NoError(t, err)
	assert.Contains(t, updated.AdminEmails, "user@north.example")
	assert.Equal(t, members.RoleSchoolUser, f.reload(t, northUser.ID).GlobalRole)

	rs, err := f.resolver.Resolve(ctx, northUser)
	require.NoError(t, err)
	d := rbac.NewGuard().Authorize(rs, rbac.ActionManageAdmins, schoolResource(north.ID))
	assert.False(t, d.Allowed, "listing by another school grants nothing in North")

	// a new North account whose email only South lists starts as a plain user
	_, err = f.svc.AddAdminEmail(ctx, southHead, south.ID, "late@north.example")
	require.NoError(t, err)
	late, err := f.svc.CreateMember(ctx, f.admin, NewMember{Email: "late@north.example", Password: "password123", SchoolID: &north.ID})
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolUser, late.GlobalRole)
}

func TestSchoolAdminRoleKeepsAdminList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", nil)
	require.NoError(t, err)

	created, err := f.svc.CreateMember(ctx, f.admin, NewMember{
		Email: "Deputy@North.example", Password: "password123", SchoolID: &north.ID, GlobalRole: members.RoleSchoolAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolAdmin, created.GlobalRole)
	listed, err := f.store.IsAdminOf(ctx, north.ID, "deputy@north.example")
	require.NoError(t, err)
	assert.True(t, listed)

	_, err = f.svc.CreateMember(ctx, f.admin, NewMember{Email: "floating@example.com", Password: "password123", GlobalRole: members.RoleSchoolAdmin})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	// a failed insert leaves the admin list untouched
	_, err = f.svc.CreateMember(ctx, f.admin, NewMember{Email: "short@north.example", Password: "short", SchoolID: &north.ID, GlobalRole: members.RoleSchoolAdmin})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	listed, err = f.store.IsAdminOf(ctx, north.ID, "short@north.example")
	require.NoError(t, err)
	assert.False(t, listed)

	user := f.activeMember(t, "user@north.example", north.ID)
	_, err = f.svc.SetGlobalRole(ctx, f.admin, user.ID, members.RoleSchoolAdmin)
	require.NoError(t, err)
	school, err := f.store.GetSchool(ctx, north.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"deputy@north.example", "user@north.example"}, school.AdminEmails)

	_, err = f.svc.SetGlobalRole(ctx, f.admin, user.ID, members.RoleSchoolUser)
	require.NoError(t, err)
	school, err = f.store.GetSchool(ctx, north.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"deputy@north.example"}, school.AdminEmails)
}

func TestClubs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", []string{"head@north.example"})
	require.NoError(t, err)
	south, err := f.svc.CreateSchool(ctx, f.admin, "South", nil)
	require.NoError(t, err)
	head := f.activeMember(t, "head@north.example", north.ID)
	user := f.activeMember(t, "user@north.example", north.ID)

	club, err := f.svc.CreateClub(ctx, head, north.ID, "Chess", "weekly games")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Active, club.Lifecycle)

	_, err = f.svc.CreateClub(ctx, head, north.ID, "Chess", "")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = f.svc.CreateClub(ctx, head, south.ID, "Chess", "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.svc.CreateClub(ctx, user, north.ID, "Drama", "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	// school admin alone cannot edit; the club admin can
	name := "Chess & Go"
	_, err = f.svc.EditClub(ctx, head, club.ID, ClubUpdate{Name: &name})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.svc.enroll.GrantClubRole(ctx, head, user.ID, club.ID, rbac.ClubAdmin)
	require.NoError(t, err)
	edited, err := f.svc.EditClub(ctx, user, club.ID, ClubUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Chess & Go", edited.Name)

	clubs, err := f.svc.ListClubs(ctx, user, north.ID)
	require.NoError(t, err)
	assert.Len(t, clubs, 1)

	_, err = f.svc.ListClubs(ctx, user, south.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestEnrollAndDeleteClub(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", []string{"head@north.example"})
	require.NoError(t, err)
	head := f.activeMember(t, "head@north.example", north.ID)
	user := f.activeMember(t, "user@north.example", north.ID)

	club, err := f.svc.CreateClub(ctx, head, north.ID, "Robotics", "")
	require.NoError(t, err)

	g, err := f.svc.Enroll(ctx, user, club.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.ClubUser, g.Role)

	rs, err := f.resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.True(t, rs.HasGrant(club.ID))

	// inactive clubs cannot be joined
	other, err := f.svc.CreateClub(ctx, head, north.ID, "Debate", "")
	require.NoError(t, err)
	_, err = f.svc.enroll.GrantClubRole(ctx, head, head.ID, other.ID, rbac.ClubAdmin)
	require.NoError(t, err)
	inactive := lifecycle.Inactive
	_, err = f.svc.EditClub(ctx, head, other.ID, ClubUpdate{Lifecycle: &inactive})
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, user, other.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	require.NoError(t, f.svc.DeleteClub(ctx, head, club.ID))

	_, err = f.svc.GetClub(ctx, head, club.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	rs, err = f.resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.False(t, rs.HasGrant(club.ID), "deleted club grants are gone from cached role sets")

	n, err := f.grants.CountForPair(ctx, user.ID, club.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteSchoolCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", []string{"head@north.example"})
	require.NoError(t, err)
	head := f.activeMember(t, "head@north.example", north.ID)
	club, err := f.svc.CreateClub(ctx, head, north.ID, "Robotics", "")
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, head, club.ID)
	require.NoError(t, err)

	err = f.svc.DeleteSchool(ctx, head, north.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "school admins cannot delete schools")

	require.NoError(t, f.svc.DeleteSchool(ctx, f.admin, north.ID))

	_, err = f.store.GetSchool(ctx, north.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = f.store.GetClub(ctx, club.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, members.RoleSchoolUser, f.reload(t, head.ID).GlobalRole)

	grants, err := f.grants.ActiveForMember(ctx, head.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestMemberAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north, err := f.svc.CreateSchool(ctx, f.admin, "North", []string{"head@north.example"})
	require.NoError(t, err)
	south, err := f.svc.CreateSchool(ctx, f.admin, "South", nil)
	require.NoError(t, err)
	head := f.activeMember(t, "head@north.example", north.ID)

	m, err := f.svc.CreateMember(ctx, head, NewMember{Email: "new@north.example", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Inactive, m.Lifecycle)
	assert.Equal(t, north.ID, *m.SchoolID, "defaults to the admin's school")

	_, err = f.svc.CreateMember(ctx, head, NewMember{Email: "boss@north.example", Password: "password123", GlobalRole: members.RoleAppAdmin})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.svc.CreateMember(ctx, head, NewMember{Email: "x@south.example", Password: "password123", SchoolID: &south.ID})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.members.Authenticate(ctx, "new@north.example", "password123")
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated), "inactive members cannot sign in")

	_, err = f.svc.ActivateMember(ctx, head, m.ID)
	require.NoError(t, err)
	_, err = f.members.Authenticate(ctx, "new@north.example", "password123")
	require.NoError(t, err)

	_, err = f.svc.SetGlobalRole(ctx, head, m.ID, members.RoleSchoolAdmin)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	updated, err := f.svc.SetGlobalRole(ctx, f.admin, m.ID, members.RoleSchoolAdmin)
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolAdmin, updated.GlobalRole)

	_, err = f.svc.DeactivateMember(ctx, head, m.ID)
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, m)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "deactivated member no longer resolves")

	list, err := f.svc.ListMembers(ctx, head, north.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.True(t, errors.Is(f.svc.DeleteMember(ctx, head, m.ID), apperr.ErrForbidden))
	require.NoError(t, f.svc.DeleteMember(ctx, f.admin, m.ID))
	_, err = f.svc.GetMember(ctx, f.admin, m.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDiffEmails(t *testing.T) {
	added, removed := diffEmails([]string{"a", "b", "c"}, []string{"c", "d", "a"})
	assert.Equal(t, []string{"d"}, added)
	assert.Equal(t, []string{"b"}, removed)
}
