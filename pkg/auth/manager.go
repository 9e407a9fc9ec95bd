package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// MemberSource is the identity store the manager authenticates against
type MemberSource interface {
	GetByID(ctx context.Context, id int64) (*members.Member, error)
	Authenticate(ctx context.Context, email, password string) (*members.Member, error)
}

// Manager issues bearer tokens and resolves them back to members
type Manager struct {
	store     *Store
	members   MemberSource
	format    TokenFormat
	ttl       time.Duration
	audit     *audit.Recorder
	now       func() time.Time
}

// NewManager creates a token manager. A zero ttl issues tokens that never expire.
func NewManager(store *Store, source MemberSource, ttl time.Duration) *Manager {
	return &Manager{
		store:     store,
		members:   source,
		format:    DefaultTokenFormat(),
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithTokenFormat changes the shape of newly issued tokens. Tokens issued under
// an older prefix stop resolving.
func (m *Manager) WithTokenFormat(format TokenFormat) *Manager {
	m.format = format
	return m
}

// WithAudit records logins and revocations
func (m *Manager) WithAudit(rec *audit.Recorder) *Manager {
	m.audit = rec
	return m
}

// Login checks credentials and issues a token for an ACTIVE member
func (m *Manager) Login(ctx context.Context, email, password string) (*IssuedToken, *members.Member, error) {
	member, err := m.members.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthenticated) {
			m.audit.Record(ctx, &audit.Event{
				EventType: audit.EventTypeAuthLoginFailed,
				Status:    audit.EventStatusFailure,
				Message:   members.NormalizeEmail(email),
			})
		}
		return nil, nil, err
	}

	issued, err := m.IssueToken(ctx, member.ID)
	if err != nil {
		return nil, nil, err
	}

	actorID := member.ID
	m.audit.Record(ctx, &audit.Event{
		EventType:    audit.EventTypeAuthLogin,
		ActorID:      &actorID,
		SchoolID:     member.SchoolID,
		ResourceType: audit.ResourceTypeToken,
		ResourceID:   strconv.FormatInt(issued.Record.ID, 10),
	})
	return issued, member, nil
}

// IssueToken creates a token for memberID without checking credentials
func (m *Manager) IssueToken(ctx context.Context, memberID int64) (*IssuedToken, error) {
	token, hash, prefix, err := m.format.Issue()
	if err != nil {
		return nil, apperr.Internal(err, "failed to generate token")
	}

	now := m.now().UTC()
	record := &APIToken{
		MemberID:    memberID,
		TokenHash:   hash,
		TokenPrefix: prefix,
		CreatedAt:   now,
	}
	if m.ttl > 0 {
		expires := now.Add(m.ttl)
		record.ExpiresAt = &expires
	}
	if err := m.store.Create(ctx, record); err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, Record: record}, nil
}

// ResolveCaller maps a bearer token to its ACTIVE member. Every failure is Unauthenticated.
func (m *Manager) ResolveCaller(ctx context.Context, token string) (*members.Member, error) {
	record, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	member, err := m.members.GetByID(ctx, record.MemberID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid token")
		}
		return nil, err
	}
	if member.Lifecycle != lifecycle.Active {
		return nil, apperr.Unauthenticated("member is not active")
	}

	if err := m.store.Touch(ctx, record.ID, m.now()); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to record token use")
	}
	return member, nil
}

func (m *Manager) lookup(ctx context.Context, token string) (*APIToken, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("missing credentials")
	}
	if err := m.format.Parse(token); err != nil {
		return nil, apperr.Unauthenticated("invalid token format")
	}

	record, err := m.store.GetByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid token")
		}
		return nil, err
	}
	if !record.Usable(m.now()) {
		return nil, apperr.Unauthenticated("token is revoked or expired")
	}
	return record, nil
}

// Logout revokes the presented token
func (m *Manager) Logout(ctx context.Context, token string) error {
	record, err := m.lookup(ctx, token)
	if err != nil {
		return err
	}
	if _, err := m.store.Revoke(ctx, record.ID, m.now()); err != nil {
		return err
	}
	m.recordRevoke(ctx, record.MemberID, record)
	return nil
}

// RevokeToken revokes a token by id. Members revoke their own tokens; APP_ADMIN revokes any.
func (m *Manager) RevokeToken(ctx context.Context, caller *members.Member, tokenID int64) error {
	if caller == nil || caller.ID == 0 {
		return apperr.Unauthenticated("no caller identity")
	}
	record, err := m.store.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if record.MemberID != caller.ID && caller.GlobalRole != members.RoleAppAdmin {
		return apperr.Forbidden("cannot revoke another member's token")
	}

	revoked, err := m.store.Revoke(ctx, tokenID, m.now())
	if err != nil {
		return err
	}
	if !revoked {
		return apperr.InvalidState("token %d is already revoked", tokenID)
	}
	m.recordRevoke(ctx, caller.ID, record)
	return nil
}

// ListTokens returns the caller's own tokens
func (m *Manager) ListTokens(ctx context.Context, caller *members.Member) ([]*APIToken, error) {
	if caller == nil || caller.ID == 0 {
		return nil, apperr.Unauthenticated("no caller identity")
	}
	return m.store.ListForMember(ctx, caller.ID)
}

// CleanupExpired deletes expired tokens
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

func (m *Manager) recordRevoke(ctx context.Context, actorID int64, record *APIToken) {
	m.audit.Record(ctx, &audit.Event{
		EventType:    audit.EventTypeAuthTokenRevoke,
		ActorID:      &actorID,
		ResourceType: audit.ResourceTypeToken,
		ResourceID:   strconv.FormatInt(record.ID, 10),
		Metadata:     map[string]interface{}{"prefix": record.TokenPrefix},
	})
}
