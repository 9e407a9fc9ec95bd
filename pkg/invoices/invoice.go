package invoices

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jimf8th/my-skool-club-sub000/pkg/approval"
)

const maxDescription = 500

// LineItem is one billed line
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Amount is quantity times unit price
func (l LineItem) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Invoice is a club bill that needs a club admin's approval before it is sent
type Invoice struct {
	approval.Record
	Items []LineItem      `json:"items"`
	Notes string          `json:"notes,omitempty"`
	Total decimal.Decimal `json:"total"`

	// Draft creates the invoice in DRAFT instead of PENDING
	Draft bool `json:"-"`
}

type payload struct {
	Items []LineItem `json:"items"`
	Notes string     `json:"notes,omitempty"`
}

// Validate checks the line items
func (inv *Invoice) Validate() error {
	if len(inv.Items) == 0 {
		return errors.New("invoice needs at least one line item")
	}
	for i, item := range inv.Items {
		desc := strings.TrimSpace(item.Description)
		switch {
		case desc == "":
			return fmt.Errorf("line %d: description is required", i+1)
		case len(desc) > maxDescription:
			return fmt.Errorf("line %d: description is too long", i+1)
		case item.Quantity <= 0:
			return fmt.Errorf("line %d: quantity must be positive", i+1)
		case item.UnitPrice.IsNegative():
			return fmt.Errorf("line %d: unit price must not be negative", i+1)
		}
		inv.Items[i].Description = desc
	}
	inv.Notes = strings.TrimSpace(inv.Notes)
	inv.recompute()
	return nil
}

func (inv *Invoice) recompute() {
	total := decimal.Zero
	for _, item := range inv.Items {
		total = total.Add(item.Amount())
	}
	inv.Total = total.Round(2)
}

// MarshalPayload implements approval.Approvable
func (inv *Invoice) MarshalPayload() ([]byte, error) {
	return json.Marshal(payload{Items: inv.Items, Notes: inv.Notes})
}

// UnmarshalPayload implements approval.Approvable
func (inv *Invoice) UnmarshalPayload(data []byte) error {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	inv.Items = p.Items
	inv.Notes = p.Notes
	inv.recompute()
	return nil
}

// Spec describes invoices to the approval machine
var Spec = &approval.Spec[*Invoice]{
	Kind:         approval.KindInvoice,
	NumberPrefix: "INV",
	Statuses: []approval.Status{
		approval.StatusDraft,
		approval.StatusPending,
		approval.StatusApproved,
		approval.StatusRejected,
		approval.StatusSent,
		approval.StatusPaid,
		approval.StatusOverdue,
		approval.StatusCancelled,
	},
	Awaiting:    []approval.Status{approval.StatusDraft, approval.StatusPending},
	OverdueFrom: []approval.Status{approval.StatusApproved, approval.StatusSent},
	InitialStatus: func(inv *Invoice) approval.Status {
		if inv.Draft {
			return approval.StatusDraft
		}
		return approval.StatusPending
	},
	New: func() *Invoice { return &Invoice{} },
}

// Steps after creation
var (
	StepSubmit = approval.Step{
		Name:   "submit",
		Action: "submit",
		From:   []approval.Status{approval.StatusDraft},
		To:     approval.StatusPending,
	}
	StepSend = approval.Step{
		Name:   "send",
		Action: "send",
		From:   []approval.Status{approval.StatusApproved},
		To:     approval.StatusSent,
	}
	StepPay = approval.Step{
		Name:     "pay",
		Action:   "pay",
		From:     []approval.Status{approval.StatusSent},
		To:       approval.StatusPaid,
		Complete: true,
	}
	StepCancel = approval.Step{
		Name:   "cancel",
		Action: "cancel",
		From: []approval.Status{
			approval.StatusDraft,
			approval.StatusPending,
			approval.StatusApproved,
			approval.StatusSent,
		},
		To: approval.StatusCancelled,
	}
)
