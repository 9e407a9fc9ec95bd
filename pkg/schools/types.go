package schools

import (
	"fmt"
	"strings"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
)

// School is a tenant. AdminEmails members are kept at SCHOOL_ADMIN.
type School struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	AdminEmails []string        `json:"admin_emails"`
	Lifecycle   lifecycle.State `json:"lifecycle"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Club belongs to exactly one school
type Club struct {
	ID          int64           `json:"id"`
	SchoolID    int64           `json:"school_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Lifecycle   lifecycle.State `json:"lifecycle"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Ref returns the guard's view of the club
func (c *Club) Ref() *rbac.ClubRef {
	return &rbac.ClubRef{ID: c.ID, SchoolID: c.SchoolID, Active: c.Lifecycle == lifecycle.Active}
}

// ClubUpdate carries the fields of a club edit; nil fields are left unchanged
type ClubUpdate struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Lifecycle   *lifecycle.State `json:"lifecycle,omitempty"`
}

// NewMember is the input for creating a member account
type NewMember struct {
	Email      string             `json:"email"`
	FullName   string             `json:"full_name"`
	Password   string             `json:"password"`
	GlobalRole members.GlobalRole `json:"global_role"`
	SchoolID   *int64             `json:"school_id,omitempty"`
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if len(name) > 255 {
		return "", fmt.Errorf("name must be at most 255 characters")
	}
	return name, nil
}

// normalizeEmails lower-cases, validates and de-duplicates an admin list, keeping order
func normalizeEmails(emails []string) ([]string, error) {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = members.NormalizeEmail(e)
		if err := members.ValidateEmail(e); err != nil {
			return nil, err
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}

// diffEmails returns the emails in next but not in prev, and in prev but not in next
func diffEmails(prev, next []string) (added, removed []string) {
	inPrev := make(map[string]bool, len(prev))
	for _, e := range prev {
		inPrev[e] = true
	}
	inNext := make(map[string]bool, len(next))
	for _, e := range next {
		inNext[e] = true
		if !inPrev[e] {
			added = append(added, e)
		}
	}
	for _, e := range prev {
		if !inNext[e] {
			removed = append(removed, e)
		}
	}
	return added, removed
}
