package rbac

import (
	"context"
	"strconv"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// Enforcer combines the resolver and the guard and turns denials into errors
type Enforcer struct {
	resolver *Resolver
	guard    *Guard
	policy   ListPolicy
	audit    *audit.Recorder
	metrics  *observability.Metrics
}

// NewEnforcer creates an enforcer with the fallback list policy
func NewEnforcer(resolver *Resolver, guard *Guard) *Enforcer {
	return &Enforcer{resolver: resolver, guard: guard, policy: PolicyFallbackFirstClub}
}

// WithListPolicy sets how foreign club list requests are handled
func (e *Enforcer) WithListPolicy(policy ListPolicy) *Enforcer {
	e.policy = policy
	return e
}

// WithAudit records denials
func (e *Enforcer) WithAudit(rec *audit.Recorder) *Enforcer {
	e.audit = rec
	return e
}

// WithMetrics counts decisions
func (e *Enforcer) WithMetrics(metrics *observability.Metrics) *Enforcer {
	e.metrics = metrics
	return e
}

// Roles resolves the caller's role set
func (e *Enforcer) Roles(ctx context.Context, caller *members.Member) (*RoleSet, error) {
	return e.resolver.Resolve(ctx, caller)
}

// Check asks the guard and returns Forbidden carrying the denial reason
func (e *Enforcer) Check(ctx context.Context, rs *RoleSet, action Action, res Resource) error {
	d := e.guard.Authorize(rs, action, res)
	e.metrics.RecordAuthzDecision(string(action), string(res.Kind), d.Allowed)
	if d.Allowed {
		return nil
	}

	var actorID int64
	if rs != nil {
		actorID = rs.MemberID
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"action":   string(action),
		"resource": string(res.Kind),
		"id":       res.ID,
		"reason":   d.Reason,
	}).Debug("access denied")
	e.audit.Denied(ctx, actorID, audit.ResourceType(res.Kind), strconv.FormatInt(res.ID, 10), d.Reason)

	return apperr.Forbidden("%s", d.Reason)
}

// Enforce resolves the caller and checks the action in one step
func (e *Enforcer) Enforce(ctx context.Context, caller *members.Member, action Action, res Resource) (*RoleSet, error) {
	rs, err := e.Roles(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := e.Check(ctx, rs, action, res); err != nil {
		return nil, err
	}
	return rs, nil
}

// ListScope applies the configured list policy
func (e *Enforcer) ListScope(rs *RoleSet, requested *int64) (ListScope, error) {
	return ResolveListScope(rs, requested, e.policy)
}

// Invalidate drops cached role sets after a role change
func (e *Enforcer) Invalidate(ctx context.Context, memberIDs ...int64) {
	e.resolver.Invalidate(ctx, memberIDs...)
}
