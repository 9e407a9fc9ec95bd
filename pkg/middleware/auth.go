package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/contextkeys"
	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
)

// CallerResolver maps a bearer token to a member
type CallerResolver interface {
	ResolveCaller(ctx context.Context, token string) (*members.Member, error)
}

// Authenticator resolves the bearer token of each request to the calling member
type Authenticator struct {
	resolver CallerResolver
	optional bool // If true, allow requests without auth
}

// NewAuthenticator creates the authentication middleware
func NewAuthenticator(resolver CallerResolver, optional bool) *Authenticator {
	return &Authenticator{
		resolver: resolver,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			if m.optional && r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteAppError(w, apperr.Unauthenticated("missing or malformed authorization header"))
			return
		}

		caller, err := m.resolver.ResolveCaller(r.Context(), token)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}

		ctx := contextkeys.WithCaller(r.Context(), caller)
		ctx = contextkeys.WithMemberID(ctx, caller.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Caller returns the authenticated member, or nil
func Caller(r *http.Request) *members.Member {
	return CallerFromContext(r.Context())
}

// CallerFromContext returns the authenticated member stored by Authenticator
func CallerFromContext(ctx context.Context) *members.Member {
	caller, _ := ctx.Value(contextkeys.CallerKey).(*members.Member)
	return caller
}
