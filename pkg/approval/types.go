package approval

import (
	"fmt"
	"strings"
	"time"
)

// Kind names an approvable record type
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindCheckout Kind = "checkout"
)

// Status is the workflow status. The allowed subset depends on the kind.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusSent      Status = "SENT"
	StatusPaid      Status = "PAID"
	StatusActive    Status = "ACTIVE"
	StatusReturned  Status = "RETURNED"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// ApprovalStatus is the ground truth of the two-party approval
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ParseApprovalStatus rejects unknown values
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	a := ApprovalStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return a, nil
	}
	return "", fmt.Errorf("invalid approval status: %q", s)
}

// Record is the header shared by every approvable type
type Record struct {
	ID              int64          `json:"id"`
	Kind            Kind           `json:"kind"`
	Number          string         `json:"number"`
	ClubID          int64          `json:"club_id"`
	SchoolID        int64          `json:"school_id"`
	CreatedBy       int64          `json:"created_by"`
	Status          Status         `json:"status"`
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	ApprovedBy      *int64         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	DueDate         *time.Time     `json:"due_date,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Version         int64          `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	// Overdue is derived at read time and never stored
	Overdue bool `json:"overdue"`
}

// Header returns the record itself so types embedding Record satisfy Approvable
func (r *Record) Header() *Record {
	return r
}

// Approvable is a record with a kind-specific payload
type Approvable interface {
	Header() *Record
	// Validate checks the payload; its message is surfaced as a validation error
	Validate() error
	MarshalPayload() ([]byte, error)
	UnmarshalPayload(data []byte) error
}

// Spec describes one approvable kind
type Spec[T Approvable] struct {
	Kind         Kind
	NumberPrefix string
	// Statuses is the closed set of statuses the kind may hold
	Statuses []Status
	// Awaiting are the statuses in which a record still waits for approval. Such a
	// record may be edited, deleted, approved or rejected.
	Awaiting []Status
	// OverdueFrom are the statuses that read as OVERDUE once the due date passes
	OverdueFrom []Status
	// InitialStatus picks the status of a new record; nil means PENDING
	InitialStatus func(T) Status
	New           func() T
}

// ParseStatus rejects statuses outside the kind's set
func (s *Spec[T]) ParseStatus(v string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !hasStatus(s.Statuses, st) {
		return "", fmt.Errorf("invalid %s status: %q", s.Kind, v)
	}
	return st, nil
}

// IsAwaiting reports whether rec can still be edited or deleted
func (s *Spec[T]) IsAwaiting(rec *Record) bool {
	return rec.ApprovalStatus == ApprovalPending && hasStatus(s.Awaiting, rec.Status)
}

// IsDecidable reports whether rec can be approved or rejected. A draft invoice
// is decidable; a cancelled record is not, even though its approval is still PENDING.
func (s *Spec[T]) IsDecidable(rec *Record) bool {
	return s.IsAwaiting(rec)
}

// IsOverdue reports whether rec's due date is before today's date
func (s *Spec[T]) IsOverdue(rec *Record, now time.Time) bool {
	if rec.DueDate == nil || !hasStatus(s.OverdueFrom, rec.Status) {
		return false
	}
	return rec.DueDate.UTC().Before(StartOfDay(now))
}

// EffectiveStatus is the stored status, or OVERDUE when the derived predicate holds
func (s *Spec[T]) EffectiveStatus(rec *Record, now time.Time) Status {
	if s.IsOverdue(rec, now) {
		return StatusOverdue
	}
	return rec.Status
}

// Step is a post-creation status transition other than approve and reject
type Step struct {
	Name   string
	Action string
	From   []Status
	To     Status
	// Complete stamps CompletedAt with the current date
	Complete bool
}

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func hasStatus(set []Status, st Status) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}
