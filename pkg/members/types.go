// Package members is the identity store: member records, global roles and
// credential checks. It performs no authorization of its own.
package members

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
)

// GlobalRole is the application-wide role of a member
type GlobalRole string

const (
	RoleAppAdmin    GlobalRole = "APP_ADMIN"
	RoleSchoolAdmin GlobalRole = "SCHOOL_ADMIN"
	RoleSchoolUser  GlobalRole = "SCHOOL_USER"
)

// Valid reports whether r is one of the closed set of global roles
func (r GlobalRole) Valid() bool {
	switch r {
	case RoleAppAdmin, RoleSchoolAdmin, RoleSchoolUser:
		return true
	}
	return false
}

// ParseGlobalRole rejects unknown role names
func ParseGlobalRole(s string) (GlobalRole, error) {
	r := GlobalRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid global role: %q", s)
	}
	return r, nil
}

// Member is a user of the system. SchoolID is nil only for APP_ADMIN.
type Member struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	FullName     string          `json:"full_name"`
	PasswordHash string          `json:"-"`
	GlobalRole   GlobalRole      `json:"global_role"`
	SchoolID     *int64          `json:"school_id,omitempty"`
	Lifecycle    lifecycle.State `json:"lifecycle"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsActive reports whether the member may authenticate and receive grants
func (m *Member) IsActive() bool {
	return m != nil && m.Lifecycle == lifecycle.Active
}

// InSchool reports whether the member belongs to schoolID
func (m *Member) InSchool(schoolID int64) bool {
	return m != nil && m.SchoolID != nil && *m.SchoolID == schoolID
}

// NormalizeEmail lower-cases and trims an email address for storage and comparison
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address: %q", email)
	}
	return nil
}

// Validate checks the invariants of a member record before it is stored
func (m *Member) Validate() error {
	if err := ValidateEmail(m.Email); err != nil {
		return err
	}
	if !m.GlobalRole.Valid() {
		return fmt.Errorf("invalid global role: %q", m.GlobalRole)
	}
	if m.GlobalRole != RoleAppAdmin && m.SchoolID == nil {
		return fmt.Errorf("school is required for role %s", m.GlobalRole)
	}
	if m.Lifecycle != "" && !m.Lifecycle.Valid() {
		return fmt.Errorf("invalid lifecycle state: %q", m.Lifecycle)
	}
	return nil
}
