package invoices

import (
	"context"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/approval"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// Update changes an invoice that still awaits approval. Nil fields are kept.
type Update struct {
	Items   []LineItem
	Notes   *string
	DueDate *time.Time
	// ClearDueDate removes the due date
	ClearDueDate bool
}

// Service exposes the invoice workflow. Create, Get, List, Delete, Approve and
// Reject come from the embedded machine.
type Service struct {
	*approval.Machine[*Invoice]
}

// NewService creates an invoice service
func NewService(db storage.DBTX, clubs rbac.ClubLookup, enforcer *rbac.Enforcer) *Service {
	return &Service{Machine: approval.NewMachine(Spec, db, clubs, enforcer)}
}

// Update applies u to a DRAFT or PENDING invoice
func (s *Service) Update(ctx context.Context, caller *members.Member, id int64, u Update) (*Invoice, error) {
	return s.Edit(ctx, caller, id, func(inv *Invoice) error {
		if u.Items != nil {
			inv.Items = u.Items
		}
		if u.Notes != nil {
			inv.Notes = *u.Notes
		}
		if u.ClearDueDate {
			inv.DueDate = nil
		} else if u.DueDate != nil {
			due := *u.DueDate
			inv.DueDate = &due
		}
		return nil
	})
}

// Submit moves a DRAFT invoice to PENDING
func (s *Service) Submit(ctx context.Context, caller *members.Member, id int64) (*Invoice, error) {
	return s.Advance(ctx, caller, id, StepSubmit)
}

// MarkSent records that an approved invoice went out
func (s *Service) MarkSent(ctx context.Context, caller *members.Member, id int64) (*Invoice, error) {
	return s.Advance(ctx, caller, id, StepSend)
}

// MarkPaid closes a sent invoice and stamps the paid date
func (s *Service) MarkPaid(ctx context.Context, caller *members.Member, id int64) (*Invoice, error) {
	return s.Advance(ctx, caller, id, StepPay)
}

// Cancel voids an invoice that is not yet paid, rejected or cancelled
func (s *Service) Cancel(ctx context.Context, caller *members.Member, id int64) (*Invoice, error) {
	return s.Advance(ctx, caller, id, StepCancel)
}
