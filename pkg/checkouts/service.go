package checkouts

import (
	"context"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/approval"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// Update changes a pending checkout. Nil fields are kept.
type Update struct {
	Items        []Item
	CheckoutDate *time.Time
	DueDate      *time.Time
	Notes        *string
}

// Service exposes the checkout workflow on top of the approval machine
type Service struct {
	*approval.Machine[*Checkout]
}

// NewService creates a checkout service
func NewService(db storage.DBTX, clubs rbac.ClubLookup, enforcer *rbac.Enforcer) *Service {
	return &Service{Machine: approval.NewMachine(Spec, db, clubs, enforcer)}
}

// Update applies u to a pending checkout
func (s *Service) Update(ctx context.Context, caller *members.Member, id int64, u Update) (*Checkout, error) {
	return s.Edit(ctx, caller, id, func(c *Checkout) error {
		if u.Items != nil {
			c.Items = u.Items
		}
		if u.CheckoutDate != nil {
			c.CheckoutDate = *u.CheckoutDate
		}
		if u.DueDate != nil {
			due := *u.DueDate
			c.DueDate = &due
		}
		if u.Notes != nil {
			c.Notes = *u.Notes
		}
		return nil
	})
}

// MarkReturned records that approved equipment came back today
func (s *Service) MarkReturned(ctx context.Context, caller *members.Member, id int64) (*Checkout, error) {
	return s.Advance(ctx, caller, id, StepReturn)
}

// Cancel voids a pending or approved checkout
func (s *Service) Cancel(ctx context.Context, caller *members.Member, id int64) (*Checkout, error) {
	return s.Advance(ctx, caller, id, StepCancel)
}
