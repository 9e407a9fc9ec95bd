// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// Authenticator resolves "Authorization: Bearer <token>" to the calling member
// and stores it in the request context; handlers read it back with Caller(r)
// and pass it explicitly to the core services.
//
//	authn := middleware.NewAuthenticator(authManager, false)
//	router.Use(authn.Handler)
//
// RateLimit throttles by member id once authenticated and by client address
// otherwise. The in-process RateLimiter is a token bucket; the Redis-backed
// DistributedRateLimiter shares fixed-window counters across instances and
// fails open on Redis errors unless SetFailOpen(false) is used.
//
//	login := middleware.NewRateLimit(middleware.NewRateLimiter(middleware.LoginRateLimitConfig()), "login")
//	router.Handle("/v1/auth/login", login.Handler(loginHandler))
package middleware
