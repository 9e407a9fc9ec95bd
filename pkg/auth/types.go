package auth

import "time"

// APIToken is a stored bearer token. The plaintext is returned once at issue time.
type APIToken struct {
	ID          int64      `json:"id"`
	MemberID    int64      `json:"member_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Usable reports whether the token is neither revoked nor expired at now
func (t *APIToken) Usable(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// IssuedToken pairs the stored record with the plaintext handed to the client
type IssuedToken struct {
	Token  string    `json:"token"`
	Record *APIToken `json:"record"`
}
