package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
)

// ClubRole is a member's role within one club
type ClubRole string

const (
	ClubAdmin ClubRole = "CLUB_ADMIN"
	ClubUser  ClubRole = "CLUB_USER"
)

// Valid reports whether r is one of the closed set of club roles
func (r ClubRole) Valid() bool {
	return r == ClubAdmin || r == ClubUser
}

// ParseClubRole rejects unknown role names
func ParseClubRole(s string) (ClubRole, error) {
	r := ClubRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid club role: %q", s)
	}
	return r, nil
}

// Grant binds a member to a club with a role. SchoolID is the club's school.
type Grant struct {
	ID        int64           `json:"id"`
	MemberID  int64           `json:"member_id"`
	ClubID    int64           `json:"club_id"`
	SchoolID  int64           `json:"school_id"`
	Role      ClubRole        `json:"role"`
	Lifecycle lifecycle.State `json:"lifecycle"`
	GrantedBy *int64          `json:"granted_by,omitempty"`
	GrantedAt time.Time       `json:"granted_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ClubGrant is one entry of a resolved role set
type ClubGrant struct {
	ClubID int64    `json:"club_id"`
	Role   ClubRole `json:"role"`
}

// RoleSet is a snapshot of a caller's roles. ClubRoles keeps grant storage order.
type RoleSet struct {
	MemberID   int64              `json:"member_id"`
	SchoolID   *int64             `json:"school_id,omitempty"`
	GlobalRole members.GlobalRole `json:"global_role"`
	ClubRoles  []ClubGrant        `json:"club_roles"`
	ResolvedAt time.Time          `json:"resolved_at"`
}

// IsAppAdmin reports whether the caller is an application admin
func (rs *RoleSet) IsAppAdmin() bool {
	return rs.GlobalRole == members.RoleAppAdmin
}

// InSchool reports whether the caller belongs to schoolID
func (rs *RoleSet) InSchool(schoolID int64) bool {
	return rs.SchoolID != nil && *rs.SchoolID == schoolID
}

// IsSchoolAdminOf reports whether the caller administers schoolID
func (rs *RoleSet) IsSchoolAdminOf(schoolID int64) bool {
	return rs.GlobalRole == members.RoleSchoolAdmin && rs.InSchool(schoolID)
}

// ClubRole returns the caller's role in clubID
func (rs *RoleSet) ClubRole(clubID int64) (ClubRole, bool) {
	for _, g := range rs.ClubRoles {
		if g.ClubID == clubID {
			return g.Role, true
		}
	}
	return "", false
}

// HasGrant reports whether the caller holds any active grant for clubID
func (rs *RoleSet) HasGrant(clubID int64) bool {
	_, ok := rs.ClubRole(clubID)
	return ok
}

// IsClubAdmin reports whether the caller is CLUB_ADMIN of clubID
func (rs *RoleSet) IsClubAdmin(clubID int64) bool {
	role, ok := rs.ClubRole(clubID)
	return ok && role == ClubAdmin
}

// FirstClub returns the club of the earliest stored grant
func (rs *RoleSet) FirstClub() (int64, bool) {
	if len(rs.ClubRoles) == 0 {
		return 0, false
	}
	return rs.ClubRoles[0].ClubID, true
}

// ClubIDs lists the caller's clubs in grant order
func (rs *RoleSet) ClubIDs() []int64 {
	ids := make([]int64, len(rs.ClubRoles))
	for i, g := range rs.ClubRoles {
		ids[i] = g.ClubID
	}
	return ids
}

// Clone returns a deep copy so cached sets are never shared
func (rs *RoleSet) Clone() *RoleSet {
	c := *rs
	if rs.SchoolID != nil {
		id := *rs.SchoolID
		c.SchoolID = &id
	}
	c.ClubRoles = append([]ClubGrant(nil), rs.ClubRoles...)
	return &c
}

// Action is an operation the scope guard decides on
type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionList         Action = "list"
	ActionEdit         Action = "edit"
	ActionDelete       Action = "delete"
	ActionEnroll       Action = "enroll"
	ActionManageRoles  Action = "manage_roles"
	ActionManageAdmins Action = "manage_admins"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionSubmit       Action = "submit"
	ActionReturn       Action = "return"
	ActionSend         Action = "send"
	ActionPay          Action = "pay"
	ActionCancel       Action = "cancel"
	ActionActivate     Action = "activate"
	ActionDeactivate   Action = "deactivate"
	ActionSetRole      Action = "set_role"
)

// ResourceKind is the type of entity an action targets
type ResourceKind string

const (
	ResourceSchool   ResourceKind = "school"
	ResourceClub     ResourceKind = "club"
	ResourceMember   ResourceKind = "member"
	ResourceInvoice  ResourceKind = "invoice"
	ResourceCheckout ResourceKind = "checkout"
)

// Resource describes the target of a guard decision. For a club being created,
// SchoolID is the target school and ClubID is zero.
type Resource struct {
	Kind       ResourceKind
	ID         int64
	SchoolID   int64
	ClubID     int64
	ClubActive bool
}

// ClubRef is the minimal view of a club the guard needs
type ClubRef struct {
	ID       int64
	SchoolID int64
	Active   bool
}

// ClubResource describes a club for a guard decision
func ClubResource(club *ClubRef) Resource {
	return Resource{
		Kind:       ResourceClub,
		ID:         club.ID,
		SchoolID:   club.SchoolID,
		ClubID:     club.ID,
		ClubActive: club.Active,
	}
}

// Decision is the guard's answer
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }
