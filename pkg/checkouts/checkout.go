package checkouts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/approval"
)

// Item is one piece of borrowed equipment
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Checkout is an equipment loan that needs a club admin's approval.
// The header's DueDate is the return deadline and CompletedAt the return date.
type Checkout struct {
	approval.Record
	Items        []Item    `json:"items"`
	CheckoutDate time.Time `json:"checkout_date"`
	Notes        string    `json:"notes,omitempty"`
}

type payload struct {
	Items        []Item    `json:"items"`
	CheckoutDate time.Time `json:"checkout_date"`
	Notes        string    `json:"notes,omitempty"`
}

// Validate checks items and dates
func (c *Checkout) Validate() error {
	if len(c.Items) == 0 {
		return errors.New("checkout needs at least one item")
	}
	for i, item := range c.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return fmt.Errorf("item %d: name is required", i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		c.Items[i].Name = name
	}
	if c.CheckoutDate.IsZero() {
		return errors.New("checkout date is required")
	}
	if c.DueDate == nil {
		return errors.New("due date is required")
	}
	if approval.StartOfDay(*c.DueDate).Before(approval.StartOfDay(c.CheckoutDate)) {
		return errors.New("due date before checkout date")
	}
	c.CheckoutDate = c.CheckoutDate.UTC()
	c.Notes = strings.TrimSpace(c.Notes)
	return nil
}

// MarshalPayload implements approval.Approvable
func (c *Checkout) MarshalPayload() ([]byte, error) {
	return json.Marshal(payload{Items: c.Items, CheckoutDate: c.CheckoutDate, Notes: c.Notes})
}

// UnmarshalPayload implements approval.Approvable
func (c *Checkout) UnmarshalPayload(data []byte) error {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	c.Items = p.Items
	c.CheckoutDate = p.CheckoutDate
	c.Notes = p.Notes
	return nil
}

// ReturnDate is the day the equipment came back
func (c *Checkout) ReturnDate() *time.Time {
	return c.CompletedAt
}

// Spec describes checkouts to the approval machine. ACTIVE is a valid stored
// status for compatibility but no step produces it.
var Spec = &approval.Spec[*Checkout]{
	Kind:         approval.KindCheckout,
	NumberPrefix: "CHK",
	Statuses: []approval.Status{
		approval.StatusPending,
		approval.StatusApproved,
		approval.StatusRejected,
		approval.StatusActive,
		approval.StatusReturned,
		approval.StatusOverdue,
		approval.StatusCancelled,
	},
	Awaiting:    []approval.Status{approval.StatusPending},
	OverdueFrom: []approval.Status{approval.StatusApproved, approval.StatusActive},
	New:         func() *Checkout { return &Checkout{} },
}

// Steps after approval
var (
	StepReturn = approval.Step{
		Name:     "return",
		Action:   "return",
		From:     []approval.Status{approval.StatusApproved},
		To:       approval.StatusReturned,
		Complete: true,
	}
	StepCancel = approval.Step{
		Name:   "cancel",
		Action: "cancel",
		From:   []approval.Status{approval.StatusPending, approval.StatusApproved},
		To:     approval.StatusCancelled,
	}
)
