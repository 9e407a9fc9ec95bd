package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthTokenRevoke EventType = "auth.token_revoke"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"
	EventTypeAuthzRoleGrant    EventType = "authz.role_grant"
	EventTypeAuthzRoleRevoke   EventType = "authz.role_revoke"
	EventTypeAuthzEnroll       EventType = "authz.enroll"

	// Tenancy events
	EventTypeSchoolCreate       EventType = "school.create"
	EventTypeSchoolDelete       EventType = "school.delete"
	EventTypeSchoolAdminsChange EventType = "school.admins_change"
	EventTypeClubCreate         EventType = "club.create"
	EventTypeClubUpdate         EventType = "club.update"
	EventTypeClubDelete         EventType = "club.delete"

	// Member administration events
	EventTypeMemberCreate     EventType = "member.create"
	EventTypeMemberActivate   EventType = "member.activate"
	EventTypeMemberDeactivate EventType = "member.deactivate"
	EventTypeMemberRoleChange EventType = "member.role_change"
	EventTypeMemberDelete     EventType = "member.delete"

	// Approval workflow events
	EventTypeApprovalCreate     EventType = "approval.create"
	EventTypeApprovalEdit       EventType = "approval.edit"
	EventTypeApprovalDelete     EventType = "approval.delete"
	EventTypeApprovalApprove    EventType = "approval.approve"
	EventTypeApprovalReject     EventType = "approval.reject"
	EventTypeApprovalTransition EventType = "approval.transition"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeSchool   ResourceType = "school"
	ResourceTypeClub     ResourceType = "club"
	ResourceTypeMember   ResourceType = "member"
	ResourceTypeGrant    ResourceType = "grant"
	ResourceTypeInvoice  ResourceType = "invoice"
	ResourceTypeCheckout ResourceType = "checkout"
	ResourceTypeToken    ResourceType = "token"
)

// Event represents a single audit log entry
type Event struct {
	ID         int64       `json:"id"`
	OccurredAt time.Time   `json:"occurred_at"`
	EventType  EventType   `json:"event_type"`
	Status     EventStatus `json:"status"`

	ActorID  *int64 `json:"actor_id,omitempty"`
	SchoolID *int64 `json:"school_id,omitempty"`
	ClubID   *int64 `json:"club_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter narrows an audit query
type SearchFilter struct {
	EventType EventType
	ActorID   *int64
	ClubID    *int64
	Since     *time.Time
	Limit     int
}
