package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
)

type memberMap map[int64]*members.Member

func (m memberMap) GetByID(ctx context.Context, id int64) (*members.Member, error) {
	if mem, ok := m[id]; ok {
		return mem, nil
	}
	return nil, apperr.NotFound("member %d not found", id)
}

// gatedGrants blocks every lookup until release is closed
type gatedGrants struct {
	grants  []ClubGrant
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newGatedGrants(grants ...ClubGrant) *gatedGrants {
	return &gatedGrants{grants: grants, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedGrants) ActiveForMember(ctx context.Context, memberID int64) ([]ClubGrant, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return g.grants, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func activeCaller() *members.Member {
	return &members.Member{ID: 7, Email: "sam@example.com", GlobalRole: members.RoleSchoolUser, Lifecycle: lifecycle.Active}
}

func TestResolve_CancelledCallerDoesNotFailOthers(t *testing.T) {
	caller := activeCaller()
	grants := newGatedGrants(ClubGrant{ClubID: 1, Role: ClubAdmin})
	cache := NewLRUCache(10, time.Minute)
	r := NewResolver(memberMap{7: caller}, grants).WithCache(cache)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, caller)
		firstErr <- err
	}()
	<-grants.started

	type result struct {
		rs  *RoleSet
		err error
	}
	second := make(chan result, 1)
	go func() {
		rs, err := r.Resolve(context.Background(), caller)
		second <- result{rs, err}
	}()

	cancelFirst()
	assert.True(t, errors.Is(<-firstErr, context.Canceled))

	close(grants.release)
	got := <-second
	require.NoError(t, got.err)
	assert.True(t, got.rs.IsClubAdmin(1))

	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, err := r.Resolve(context.Background(), caller)
	require.NoError(t, err)
	assert.LessOrEqual(t, grants.calls.Load(), int32(2))
}

func TestResolve_InvalidateDuringLoadSkipsCache(t *testing.T) {
	caller := activeCaller()
	grants := newGatedGrants(ClubGrant{ClubID: 1, Role: ClubAdmin})
	cache := NewLRUCache(10, time.Minute)
	r := NewResolver(memberMap{7: caller}, grants).WithCache(cache)

	done := make(chan *RoleSet, 1)
	go func() {
		rs, err := r.Resolve(context.Background(), caller)
		assert.NoError(t, err)
		done <- rs
	}()
	<-grants.started

	// the grant is revoked while the old snapshot is still loading
	r.Invalidate(context.Background(), 7)
	close(grants.release)

	require.NotNil(t, <-done)
	assert.Equal(t, 0, cache.Len(), "a load that overlapped an invalidation must not be cached")

	_, err := r.Resolve(context.Background(), caller)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestResolve_InactiveAndUnknown(t *testing.T) {
	ctx := context.Background()
	inactive := activeCaller()
	inactive.Lifecycle = lifecycle.Inactive
	grants := newGatedGrants()
	close(grants.release)
	r := NewResolver(memberMap{7: inactive}, grants)

	_, err := r.Resolve(ctx, inactive)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = r.Resolve(ctx, &members.Member{ID: 99})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = r.Resolve(ctx, nil)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}
