package rbac

import (
	"fmt"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
)

// ListPolicy controls what happens when a caller asks to list a club they hold no grant for
type ListPolicy string

const (
	// PolicyFallbackFirstClub silently substitutes the caller's first club
	PolicyFallbackFirstClub ListPolicy = "fallback"
	// PolicyRejectForeignClub fails with Forbidden
	PolicyRejectForeignClub ListPolicy = "reject"
)

// ParseListPolicy accepts "fallback" or "reject"
func ParseListPolicy(s string) (ListPolicy, error) {
	switch ListPolicy(s) {
	case PolicyFallbackFirstClub, PolicyRejectForeignClub:
		return ListPolicy(s), nil
	}
	return "", fmt.Errorf("invalid list scope policy: %q (must be fallback or reject)", s)
}

// ListScope is the effective club filter for a list query
type ListScope struct {
	AllClubs bool  // no club restriction (app admins only)
	ClubID   int64 // the single club to list when !AllClubs && !Empty
	Empty    bool  // caller can see nothing
}

// ResolveListScope picks the club a list query is restricted to.
// Callers without grants get an empty scope rather than an error.
func ResolveListScope(caller *RoleSet, requested *int64, policy ListPolicy) (ListScope, error) {
	if caller == nil {
		return ListScope{}, apperr.Unauthenticated("no caller")
	}

	if caller.IsAppAdmin() {
		if requested != nil {
			return ListScope{ClubID: *requested}, nil
		}
		return ListScope{AllClubs: true}, nil
	}

	first, ok := caller.FirstClub()
	if !ok {
		return ListScope{Empty: true}, nil
	}

	if requested == nil {
		return ListScope{ClubID: first}, nil
	}
	if caller.HasGrant(*requested) {
		return ListScope{ClubID: *requested}, nil
	}
	if policy == PolicyRejectForeignClub {
		return ListScope{}, apperr.Forbidden("no grant for club %d", *requested)
	}
	return ListScope{ClubID: first}, nil
}
