package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// RoleCache stores resolved role sets by member id
type RoleCache interface {
	Get(ctx context.Context, memberID int64) (*RoleSet, bool)
	Set(ctx context.Context, rs *RoleSet)
	Invalidate(ctx context.Context, memberIDs ...int64)
}

// LRUCache is an in-process role cache with per-entry expiry
type LRUCache struct {
	lru *expirable.LRU[int64, *RoleSet]
}

// NewLRUCache creates an in-process cache holding at most size entries for ttl
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUCache{lru: expirable.NewLRU[int64, *RoleSet](size, nil, ttl)}
}

// Get returns a copy of the cached set
func (c *LRUCache) Get(ctx context.Context, memberID int64) (*RoleSet, bool) {
	rs, ok := c.lru.Get(memberID)
	if !ok {
		return nil, false
	}
	return rs.Clone(), true
}

// Set stores a copy of rs
func (c *LRUCache) Set(ctx context.Context, rs *RoleSet) {
	c.lru.Add(rs.MemberID, rs.Clone())
}

// Invalidate drops the given members
func (c *LRUCache) Invalidate(ctx context.Context, memberIDs ...int64) {
	for _, id := range memberIDs {
		c.lru.Remove(id)
	}
}

// Len returns the number of live entries
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares role sets between server instances
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed role cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "skoolclub:roles:", ttl: ttl}
}

func (c *RedisCache) key(memberID int64) string {
	return fmt.Sprintf("%s%d", c.prefix, memberID)
}

// Get reads a role set. Redis failures and corrupt entries count as misses.
func (c *RedisCache) Get(ctx context.Context, memberID int64) (*RoleSet, bool) {
	data, err := c.client.Get(ctx, c.key(memberID)).Bytes()
	if err == redis.Nil {
		return nil, false
	} else if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("role cache get failed")
		return nil, false
	}

	var rs RoleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		c.client.Del(ctx, c.key(memberID))
		return nil, false
	}
	return &rs, true
}

// Set writes a role set with the cache TTL
func (c *RedisCache) Set(ctx context.Context, rs *RoleSet) {
	data, err := json.Marshal(rs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(rs.MemberID), data, c.ttl).Err(); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("role cache set failed")
	}
}

// Invalidate deletes the given members' entries and bumps their generation so
// local tiers on every instance stop serving older copies
func (c *RedisCache) Invalidate(ctx context.Context, memberIDs ...int64) {
	if len(memberIDs) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range memberIDs {
			pipe.Del(ctx, c.key(id))
			pipe.Incr(ctx, c.generationKey(id))
		}
		return nil
	})
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("role cache invalidate failed")
	}
}

func (c *RedisCache) generationKey(memberID int64) string {
	return fmt.Sprintf("%sgen:%d", c.prefix, memberID)
}

// Generation returns how many times memberID has been invalidated
func (c *RedisCache) Generation(ctx context.Context, memberID int64) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(memberID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

type tieredEntry struct {
	rs  *RoleSet
	gen int64
}

// TieredCache keeps an in-process copy in front of Redis. Each local entry
// remembers the member's Redis generation and is dropped once it moves, so an
// invalidation on one instance reaches all of them.
type TieredCache struct {
	local  *expirable.LRU[int64, tieredEntry]
	shared *RedisCache
}

// NewTieredCache holds at most size local entries for ttl in front of shared
func NewTieredCache(size int, ttl time.Duration, shared *RedisCache) *TieredCache {
	if size <= 0 {
		size = 1024
	}
	return &TieredCache{local: expirable.NewLRU[int64, tieredEntry](size, nil, ttl), shared: shared}
}

// Get serves the local copy while its generation is current, otherwise reads
// Redis and back-fills. If the generation cannot be read it is a miss.
func (c *TieredCache) Get(ctx context.Context, memberID int64) (*RoleSet, bool) {
	gen, err := c.shared.Generation(ctx, memberID)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("role cache generation read failed")
		return nil, false
	}
	if e, ok := c.local.Get(memberID); ok {
		if e.gen == gen {
			return e.rs.Clone(), true
		}
		c.local.Remove(memberID)
	}

	rs, ok := c.shared.Get(ctx, memberID)
	if ok {
		c.local.Add(memberID, tieredEntry{rs: rs.Clone(), gen: gen})
	}
	return rs, ok
}

// Set writes both tiers
func (c *TieredCache) Set(ctx context.Context, rs *RoleSet) {
	gen, err := c.shared.Generation(ctx, rs.MemberID)
	if err != nil {
		return
	}
	c.shared.Set(ctx, rs)
	c.local.Add(rs.MemberID, tieredEntry{rs: rs.Clone(), gen: gen})
}

// Generation is the shared tier's generation for memberID
func (c *TieredCache) Generation(ctx context.Context, memberID int64) (int64, error) {
	return c.shared.Generation(ctx, memberID)
}

// Invalidate clears both tiers
func (c *TieredCache) Invalidate(ctx context.Context, memberIDs ...int64) {
	for _, id := range memberIDs {
		c.local.Remove(id)
	}
	c.shared.Invalidate(ctx, memberIDs...)
}

// LocalLen returns the number of live local entries
func (c *TieredCache) LocalLen() int {
	return c.local.Len()
}
