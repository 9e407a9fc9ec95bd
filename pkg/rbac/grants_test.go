package rbac

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

type fakeClubs map[int64]*ClubRef

func (f fakeClubs) LookupClub(ctx context.Context, clubID int64) (*ClubRef, error) {
	c, ok := f[clubID]
	if !ok {
		return nil, apperr.NotFound("club %d not found", clubID)
	}
	return c, nil
}

type countingLookup struct {
	MemberLookup
	mu    sync.Mutex
	calls int
}

func (c *countingLookup) GetByID(ctx context.Context, id int64) (*members.Member, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.MemberLookup.GetByID(ctx, id)
}

type fixture struct {
	db       *sql.DB
	members  *members.Store
	grants   *Store
	resolver *Resolver
	enforcer *Enforcer
	service  *GrantService
	audit    *audit.DBLogger
	metrics  *observability.Metrics
}

func newFixture(t *testing.T, cache RoleCache) *fixture {
	t.Helper()
	db := storage.NewTestDB(t)
	f := &fixture{
		db:      db,
		members: members.NewStore(db).WithHashCost(bcrypt.MinCost),
		grants:  NewStore(db),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	var err error
	f.audit, err = audit.NewDBLogger(db)
	require.NoError(t, err)

	rec := audit.NewRecorder(f.audit)
	f.resolver = NewResolver(f.members, f.grants).WithMetrics(f.metrics)
	if cache != nil {
		f.resolver.WithCache(cache)
	}
	f.enforcer = NewEnforcer(f.resolver, NewGuard()).WithAudit(rec).WithMetrics(f.metrics)
	clubs := fakeClubs{
		10: {ID: 10, SchoolID: 1, Active: true},
		11: {ID: 11, SchoolID: 1, Active: false},
		20: {ID: 20, SchoolID: 2, Active: true},
	}
	f.service = NewGrantService(f.grants, f.members, clubs, f.enforcer).WithAudit(rec)
	return f
}

func (f *fixture) member(t *testing.T, email string, role members.GlobalRole, schoolID *int64, state lifecycle.State) *members.Member {
	t.Helper()
	m := &members.Member{Email: email, GlobalRole: role, SchoolID: schoolID, Lifecycle: state}
	require.NoError(t, f.members.Create(context.Background(), m, "password123"))
	return m
}

func TestResolver_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.resolver.Resolve(ctx, nil)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	_, err = f.resolver.Resolve(ctx, &members.Member{})
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	_, err = f.resolver.Resolve(ctx, &members.Member{ID: 404})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	inactive := f.member(t, "sleepy@example.com", members.RoleSchoolUser, int64Ptr(1), lifecycle.Inactive)
	_, err = f.resolver.Resolve(ctx, inactive)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestResolver_RoleSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	m := f.member(t, "user@example.com", members.RoleSchoolUser, int64Ptr(1), lifecycle.Active)

	require.NoError(t, f.grants.Upsert(ctx, &Grant{MemberID: m.ID, ClubID: 9, SchoolID: 1, Role: ClubUser}))
	require.NoError(t, f.grants.Upsert(ctx, &Grant{MemberID: m.ID, ClubID: 7, SchoolID: 1, Role: ClubAdmin}))
	require.NoError(t, f.grants.Upsert(ctx, &Grant{MemberID: m.ID, ClubID: 8, SchoolID: 1, Role: ClubUser}))
	_, err := f.grants.Deactivate(ctx, m.ID, 8)
	require.NoError(t, err)

	// a stale global role on the supplied member is ignored
	stale := *m
	stale.GlobalRole = members.RoleAppAdmin

	rs, err := f.resolver.Resolve(ctx, &stale)
	require.NoError(t, err)
	assert.Equal(t, members.RoleSchoolUser, rs.GlobalRole)
	assert.Equal(t, int64(1), *rs.SchoolID)
	assert.Equal(t, []ClubGrant{{9, ClubUser}, {7, ClubAdmin}}, rs.ClubRoles)
	assert.False(t, rs.ResolvedAt.IsZero())
}

func TestResolver_CacheAndInvalidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLRUCache(10, time.Minute))
	lookup := &countingLookup{MemberLookup: f.members}
	f.resolver.members = lookup

	m := f.member(t, "cached@example.com", members.RoleSchoolUser, int64Ptr(1), lifecycle.Active)

	for i := 0; i < 3; i++ {
		_, err := f.resolver.Resolve(ctx, m)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, lookup.calls)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.RoleCacheRequestsTotal.WithLabelValues("hit")))

	require.NoError(t, f.grants.Upsert(ctx, &Grant{MemberID: m.ID, ClubID: 10, SchoolID: 1, Role: ClubUser}))
	f.resolver.Invalidate(ctx, m.ID)

	rs, err := f.resolver.Resolve(ctx, m)
	require.NoError(t, err)
	assert.True(t, rs.HasGrant(10))
	assert.Equal(t, 2, lookup.calls)
}

func TestGrantService_GrantAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLRUCache(10, time.Minute))

	schoolAdm := f.member(t, "admin@school1.example", members.RoleSchoolAdmin, int64Ptr(1), lifecycle.Active)
	user := f.member(t, "user@school1.example", members.RoleSchoolUser, int64Ptr(1), lifecycle.Active)

	// warm the cache so the grant must invalidate it
	rs, err := f.resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.False(t, rs.HasGrant(10))

	g, err := f.service.GrantClubRole(ctx, schoolAdm, user.ID, 10, ClubAdmin)
	require.NoError(t, err)
	assert.Equal(t, schoolAdm.ID, *g.GrantedBy)

	rs, err = f.resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.True(t, rs.IsClubAdmin(10))

	// re-grant updates in place
	_, err = f.service.GrantClubRole(ctx, schoolAdm, user.ID, 10, ClubUser)
	require.NoError(t, err)
	n, err := f.grants.CountForPair(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := f.service.ListClubGrants(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ClubUser, list[0].Role)

	revoked, err := f.service.RevokeClubRole(ctx, schoolAdm, user.ID, 10)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = f.service.RevokeClubRole(ctx, schoolAdm, user.ID, 10)
	require.NoError(t, err)
	assert.False(t, revoked)

	rs, err = f.resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.False(t, rs.HasGrant(10))

	events, err := f.audit.Search(ctx, audit.SearchFilter{EventType: audit.EventTypeAuthzRoleGrant})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestGrantService_GrantFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	schoolAdm := f.member(t, "admin@school1.example", members.RoleSchoolAdmin, int64Ptr(1), lifecycle.Active)
	clubUser := f.member(t, "user@school1.example", members.RoleSchoolUser, int64Ptr(1), lifecycle.Active)
	inactive := f.member(t, "idle@school1.example", members.RoleSchoolUser, int64Ptr(1), lifecycle.Inactive)
	foreign := f.member(t, "user@school2.example", members.RoleSchoolUser, int64Ptr(2), lifecycle.Active)
	require.NoError(t, f.grants.Upsert(ctx, &Grant{MemberID: clubUser.ID, ClubID: 10, SchoolID: 1, Role: ClubUser}))

	tests := []struct {
		name   string
		caller *members.Member
		target int64
		club   int64
		role   ClubRole
		want   error
	}{
		{"unknown club", schoolAdm, clubUser.ID, 99, ClubUser, apperr.ErrNotFound},
		{"club user cannot grant", clubUser, clubUser.ID, 10, ClubAdmin, apperr.ErrForbidden},
		{"other school admin cannot grant", schoolAdm, foreign.ID, 20, ClubUser, apperr.ErrForbidden},
		{"unknown role", schoolAdm, clubUser.ID, 10, "OWNER", apperr.ErrValidation},
		{"unknown target", schoolAdm, 999, 10, ClubUser, apperr.ErrNotFound},
		{"inactive target", schoolAdm, inactive.ID, 10, ClubUser, apperr.ErrInvalidState},
		{"target from other school", schoolAdm, foreign.ID, 10, ClubUser, apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.GrantClubRole(ctx, tt.caller, tt.target, tt.club, tt.role)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	denials, err := f.audit.Search(ctx, audit.SearchFilter{EventType: audit.EventTypeAuthzAccessDenied})
	require.NoError(t, err)
	assert.Len(t, denials, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.AuthzDecisionsTotal.WithLabelValues("manage_roles", "club", "deny")))
}

func TestGrantService_Enroll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewLRUCache(10, time.Minute))

	user := f.member(t, "joiner@school1.example", members.RoleSchoolUser, int64Ptr(1), lifecycle.Active)

	g, err := f.service.Enroll(ctx, user, 10)
	require.NoError(t, err)
	assert.Equal(t, ClubUser, g.Role)

	_, err = f.service.Enroll(ctx, user, 10)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "already enrolled")

	_, err = f.service.Enroll(ctx, user, 11)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "inactive club")

	_, err = f.service.Enroll(ctx, user, 20)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "other school")

	// a revoked member may enroll again and comes back as CLUB_USER
	_, err = f.grants.Deactivate(ctx, user.ID, 10)
	require.NoError(t, err)
	f.resolver.Invalidate(ctx, user.ID)

	g, err = f.service.Enroll(ctx, user, 10)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Active, g.Lifecycle)
	n, err := f.grants.CountForPair(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Scenario A: a club user asking for a foreign club's list sees their first club
func TestEnforcer_ListScopeFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	user := f.member(t, "lister@school1.example", members.RoleSchoolUser, int64Ptr(1), lifecycle.Active)
	require.NoError(t, f.grants.Upsert(ctx, &Grant{MemberID: user.ID, ClubID: 7, SchoolID: 1, Role: ClubUser}))
	require.NoError(t, f.grants.Upsert(ctx, &Grant{MemberID: user.ID, ClubID: 9, SchoolID: 1, Role: ClubUser}))

	rs, err := f.enforcer.Roles(ctx, user)
	require.NoError(t, err)

	scope, err := f.enforcer.ListScope(rs, int64Ptr(12))
	require.NoError(t, err)
	assert.Equal(t, int64(7), scope.ClubID)

	f.enforcer.WithListPolicy(PolicyRejectForeignClub)
	_, err = f.enforcer.ListScope(rs, int64Ptr(12))
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}
