package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimf8th/my-skool-club-sub000/pkg/contextkeys"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
)

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)
	ctx := context.Background()

	// Should allow initial requests up to limit + burst
	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		ok, err := limiter.Allow(ctx, "member:1")
		require.NoError(t, err)
		if ok {
			allowedCount++
		}
	}

	expected := config.RequestsPerWindow + config.BurstSize
	if allowedCount != expected {
		t.Errorf("Allowed %d requests, want %d", allowedCount, expected)
	}

	ok, _ := limiter.Allow(ctx, "member:2")
	assert.True(t, ok, "keys are independent")
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _ := limiter.Allow(ctx, "k")
		require.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "k")
	assert.False(t, ok)

	now = now.Add(30 * time.Second)
	ok, _ = limiter.Allow(ctx, "k")
	assert.True(t, ok, "half a window refills one token")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Allow(context.Background(), "stale")
	now = now.Add(3 * time.Second)
	limiter.Cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.buckets) != 0 {
		t.Errorf("expected stale bucket to be removed, have %d", len(limiter.buckets))
	}
}

func TestRateLimiter_Concurrency(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Hour})
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := limiter.Allow(context.Background(), "shared")
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request) *http.Request
		expect string
	}{
		{
			name:   "remote addr",
			setup:  func(r *http.Request) *http.Request { r.RemoteAddr = "10.0.0.1:5555"; return r },
			expect: "ip:10.0.0.1",
		},
		{
			name: "forwarded first hop",
			setup: func(r *http.Request) *http.Request {
				r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
				return r
			},
			expect: "ip:203.0.113.7",
		},
		{
			name:   "real ip",
			setup:  func(r *http.Request) *http.Request { r.Header.Set("X-Real-IP", "198.51.100.3"); return r },
			expect: "ip:198.51.100.3",
		},
		{
			name: "authenticated member wins",
			setup: func(r *http.Request) *http.Request {
				r.Header.Set("X-Forwarded-For", "203.0.113.7")
				return r.WithContext(contextkeys.WithCaller(r.Context(), &members.Member{ID: 42}))
			},
			expect: "member:42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.setup(httptest.NewRequest("GET", "/", nil))
			assert.Equal(t, tt.expect, RateLimitKey(r))
		})
	}
}

func TestRateLimit_Handler(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	handler := NewRateLimit(limiter, "login").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/v1/auth/login", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:2").Code)

	w := send("10.0.0.1:3")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send("10.0.0.9:1").Code, "different address is independent")
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute, BurstSize: 1}, "test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := limiter.TTL(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	mr.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")

	require.NoError(t, limiter.Reset(ctx, "ip:1.2.3.4"))
	assert.False(t, mr.Exists("test:ip:1.2.3.4"))
}

func TestRateLimit_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	limiter := NewDistributedRateLimiter(client, nil, "")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	w := httptest.NewRecorder()
	NewRateLimit(limiter, "api").Handler(next).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code, "fails open by default")

	w = httptest.NewRecorder()
	NewRateLimit(limiter, "api").SetFailOpen(false).Handler(next).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
