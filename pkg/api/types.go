package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/approval"
	"github.com/jimf8th/my-skool-club-sub000/pkg/checkouts"
	"github.com/jimf8th/my-skool-club-sub000/pkg/invoices"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
)

// Date accepts "2006-01-02" or RFC 3339 and is normalized to UTC midnight
type Date struct {
	time.Time
}

// UnmarshalJSON parses a calendar date
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return err
		}
	}
	d.Time = approval.StartOfDay(t)
	return nil
}

// Ptr returns the date as a *time.Time, nil for a nil Date
func (d *Date) Ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// LoginRequest is the body of POST /v1/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the plaintext token; it is never shown again
type LoginResponse struct {
	Token     string          `json:"token"`
	TokenID   int64           `json:"token_id"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Member    *members.Member `json:"member"`
}

// CreateSchoolRequest is the body of POST /v1/schools
type CreateSchoolRequest struct {
	Name        string   `json:"name"`
	AdminEmails []string `json:"admin_emails"`
}

// AdminEmailsRequest replaces a school's admin email list
type AdminEmailsRequest struct {
	AdminEmails []string `json:"admin_emails"`
}

// AdminEmailRequest adds one admin email
type AdminEmailRequest struct {
	Email string `json:"email"`
}

// CreateClubRequest is the body of POST /v1/schools/{id}/clubs
type CreateClubRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GrantRequest is the body of PUT /v1/clubs/{id}/grants/{member_id}
type GrantRequest struct {
	Role rbac.ClubRole `json:"role"`
}

// GlobalRoleRequest is the body of PUT /v1/members/{id}/role
type GlobalRoleRequest struct {
	GlobalRole members.GlobalRole `json:"global_role"`
}

// RevokeResponse reports whether a grant was active before revocation
type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// RejectRequest is the body of POST /v1/{kind}/{id}/reject
type RejectRequest struct {
	Reason string `json:"reason"`
}

// CreateInvoiceRequest is the body of POST /v1/clubs/{id}/invoices
type CreateInvoiceRequest struct {
	Items   []invoices.LineItem `json:"items"`
	Notes   string              `json:"notes"`
	DueDate *Date               `json:"due_date"`
	Draft   bool                `json:"draft"`
}

// UpdateInvoiceRequest is the body of PATCH /v1/invoices/{id}
type UpdateInvoiceRequest struct {
	Items        []invoices.LineItem `json:"items"`
	Notes        *string             `json:"notes"`
	DueDate      *Date               `json:"due_date"`
	ClearDueDate bool                `json:"clear_due_date"`
}

// CreateCheckoutRequest is the body of POST /v1/clubs/{id}/checkouts
type CreateCheckoutRequest struct {
	Items        []checkouts.Item `json:"items"`
	CheckoutDate *Date            `json:"checkout_date"`
	DueDate      *Date            `json:"due_date"`
	Notes        string           `json:"notes"`
}

// UpdateCheckoutRequest is the body of PATCH /v1/checkouts/{id}
type UpdateCheckoutRequest struct {
	Items        []checkouts.Item `json:"items"`
	CheckoutDate *Date            `json:"checkout_date"`
	DueDate      *Date            `json:"due_date"`
	Notes        *string          `json:"notes"`
}
