// Package invoices defines the invoice payload for the approval workflow.
//
// Invoices start as PENDING, or as DRAFT when the author wants to keep editing,
// and follow DRAFT -> PENDING -> APPROVED -> SENT -> PAID. A club admin may
// cancel any invoice that is not yet paid, rejected or cancelled. Money uses
// decimal arithmetic; the total is recomputed from the line items on every read.
package invoices
