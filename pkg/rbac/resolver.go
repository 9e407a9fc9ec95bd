package rbac

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// MemberLookup loads members by id
type MemberLookup interface {
	GetByID(ctx context.Context, id int64) (*members.Member, error)
}

// GrantLister lists a member's active grants in storage order
type GrantLister interface {
	ActiveForMember(ctx context.Context, memberID int64) ([]ClubGrant, error)
}

// loadTimeout bounds a shared load, which no longer follows any one caller's deadline
const loadTimeout = 10 * time.Second

// generationSource is implemented by caches whose invalidations are shared
// between server instances
type generationSource interface {
	Generation(ctx context.Context, memberID int64) (int64, error)
}

// stamp identifies the invalidations a load has seen
type stamp struct {
	local  uint64
	shared int64
	ok     bool
}

// Resolver builds role sets for callers
type Resolver struct {
	members MemberLookup
	grants  GrantLister
	cache   RoleCache
	metrics *observability.Metrics
	group   singleflight.Group
	now     func() time.Time

	mu   sync.Mutex
	gens map[int64]uint64
}

// NewResolver creates a resolver without a cache
func NewResolver(members MemberLookup, grants GrantLister) *Resolver {
	return &Resolver{members: members, grants: grants, now: time.Now, gens: make(map[int64]uint64)}
}

// WithCache enables role-set caching
func (r *Resolver) WithCache(cache RoleCache) *Resolver {
	r.cache = cache
	return r
}

// WithMetrics records cache hits and misses
func (r *Resolver) WithMetrics(metrics *observability.Metrics) *Resolver {
	r.metrics = metrics
	return r
}

// Resolve returns the caller's role set. The member is reloaded so a stale or
// deactivated caller never resolves.
func (r *Resolver) Resolve(ctx context.Context, caller *members.Member) (*RoleSet, error) {
	if caller == nil || caller.ID == 0 {
		return nil, apperr.Unauthenticated("caller has no identity")
	}

	if r.cache != nil {
		if rs, ok := r.cache.Get(ctx, caller.ID); ok {
			r.metrics.RecordRoleCache(true)
			return rs, nil
		}
		r.metrics.RecordRoleCache(false)
	}

	before := r.stamp(ctx, caller.ID)
	ch := r.group.DoChan(strconv.FormatInt(caller.ID, 10), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return r.load(loadCtx, caller.ID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	rs := res.Val.(*RoleSet)
	// a load that overlapped an invalidation is returned but not cached
	if r.cache != nil && before.ok && r.stamp(ctx, caller.ID) == before {
		r.cache.Set(ctx, rs)
	}
	return rs.Clone(), nil
}

func (r *Resolver) stamp(ctx context.Context, memberID int64) stamp {
	r.mu.Lock()
	st := stamp{local: r.gens[memberID], ok: true}
	r.mu.Unlock()

	if src, ok := r.cache.(generationSource); ok {
		gen, err := src.Generation(ctx, memberID)
		if err != nil {
			return stamp{}
		}
		st.shared = gen
	}
	return st
}

func (r *Resolver) load(ctx context.Context, memberID int64) (*RoleSet, error) {
	m, err := r.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("member %d not found", memberID)
		}
		return nil, err
	}
	if !m.IsActive() {
		return nil, apperr.NotFound("member %d is not active", memberID)
	}

	grants, err := r.grants.ActiveForMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	rs := &RoleSet{
		MemberID:   m.ID,
		GlobalRole: m.GlobalRole,
		ClubRoles:  grants,
		ResolvedAt: r.now().UTC(),
	}
	if m.SchoolID != nil {
		id := *m.SchoolID
		rs.SchoolID = &id
	}
	return rs, nil
}

// Invalidate forgets cached role sets for the given members. Loads already in
// flight for them finish but are not cached.
func (r *Resolver) Invalidate(ctx context.Context, memberIDs ...int64) {
	if r.cache == nil || len(memberIDs) == 0 {
		return
	}
	for _, id := range memberIDs {
		r.group.Forget(strconv.FormatInt(id, 10))
	}
	r.mu.Lock()
	for _, id := range memberIDs {
		r.gens[id]++
	}
	r.mu.Unlock()
	r.cache.Invalidate(ctx, memberIDs...)
}
