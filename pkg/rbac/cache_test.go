package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func sampleSet() *RoleSet {
	return &RoleSet{
		MemberID:   5,
		SchoolID:   int64Ptr(1),
		GlobalRole: members.RoleSchoolUser,
		ClubRoles:  []ClubGrant{{7, ClubUser}, {9, ClubAdmin}},
	}
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10, time.Minute)

	_, ok := c.Get(ctx, 5)
	assert.False(t, ok)

	rs := sampleSet()
	c.Set(ctx, rs)
	got, ok := c.Get(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, rs.ClubRoles, got.ClubRoles)

	// copies are not shared
	got.ClubRoles[0].Role = ClubAdmin
	again, _ := c.Get(ctx, 5)
	assert.Equal(t, ClubUser, again.ClubRoles[0].Role)

	c.Invalidate(ctx, 5)
	_, ok = c.Get(ctx, 5)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10, 20*time.Millisecond)
	c.Set(ctx, sampleSet())

	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, 5)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	_, ok := c.Get(ctx, 5)
	assert.False(t, ok)

	c.Set(ctx, sampleSet())
	assert.True(t, mr.Exists("skoolclub:roles:5"))

	got, ok := c.Get(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, int64(1), *got.SchoolID)
	assert.Equal(t, []ClubGrant{{7, ClubUser}, {9, ClubAdmin}}, got.ClubRoles)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, 5)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, mr.Set("skoolclub:roles:5", "{not json"))
	_, ok := c.Get(ctx, 5)
	assert.False(t, ok)
	assert.False(t, mr.Exists("skoolclub:roles:5"))
}

func TestRedisCache_ServerDownIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	mr.Close()

	_, ok := c.Get(ctx, 5)
	assert.False(t, ok)
	assert.NotPanics(t, func() { c.Set(ctx, sampleSet()) })
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	shared, mr := newRedisCache(t)
	c := NewTieredCache(10, time.Minute, shared)

	c.Set(ctx, sampleSet())
	assert.Equal(t, 1, c.LocalLen())

	c.local.Remove(5)
	_, ok := c.Get(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, 1, c.LocalLen(), "local tier back-filled from shared")

	c.Invalidate(ctx, 5)
	assert.Equal(t, 0, c.LocalLen())
	assert.False(t, mr.Exists("skoolclub:roles:5"))
	gen, err := c.Generation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestTieredCache_InvalidationReachesOtherInstances(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newInstance := func() *TieredCache {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewTieredCache(10, time.Minute, NewRedisCache(client, time.Minute))
	}
	a, b := newInstance(), newInstance()

	admin := &RoleSet{MemberID: 7, GlobalRole: members.RoleSchoolUser, ClubRoles: []ClubGrant{{ClubID: 1, Role: ClubAdmin}}}
	a.Set(ctx, admin)
	rs, ok := b.Get(ctx, 7)
	require.True(t, ok)
	require.True(t, rs.IsClubAdmin(1))
	require.Equal(t, 1, b.LocalLen())

	// grant revoked through instance a
	a.Invalidate(ctx, 7)

	_, ok = b.Get(ctx, 7)
	assert.False(t, ok, "instance b must not serve its local copy after a remote invalidation")
	assert.Equal(t, 0, b.LocalLen())

	revoked := &RoleSet{MemberID: 7, GlobalRole: members.RoleSchoolUser}
	b.Set(ctx, revoked)
	rs, ok = a.Get(ctx, 7)
	require.True(t, ok)
	assert.False(t, rs.IsClubAdmin(1))
}

func TestTieredCache_RedisDownIsMiss(t *testing.T) {
	ctx := context.Background()
	shared, mr := newRedisCache(t)
	c := NewTieredCache(10, time.Minute, shared)
	c.Set(ctx, sampleSet())
	mr.Close()

	_, ok := c.Get(ctx, 5)
	assert.False(t, ok, "a local copy is not trusted without its generation")
}
