// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// packages never collide on key values.
//
//	ctx = contextkeys.WithCaller(ctx, member)
//	member, _ := ctx.Value(contextkeys.CallerKey).(*members.Member)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// CallerKey contains *members.Member
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: every protected API handler, which passes it on explicitly
	CallerKey Key = "caller"

	// MemberIDKey contains the authenticated member id (int64)
	// Set by: middleware.Authenticator
	// Used by: logger
	MemberIDKey Key = "member_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	LoggerKey Key = "logger"
)

// WithCaller adds the authenticated member to the context
func WithCaller(ctx context.Context, caller interface{}) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// WithMemberID adds the authenticated member id to the context
func WithMemberID(ctx context.Context, memberID int64) context.Context {
	return context.WithValue(ctx, MemberIDKey, memberID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetMemberID retrieves the authenticated member id from context
func GetMemberID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(MemberIDKey).(int64)
	return id, ok
}
