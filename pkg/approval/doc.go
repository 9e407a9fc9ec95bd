// Package approval implements the two-party approval workflow shared by every
// approvable record type.
//
// A record is created by any member of its club and waits in PENDING (or DRAFT) until a
// CLUB_ADMIN of that club (or an APP_ADMIN) approves or rejects it. Rejection
// needs a non-empty reason. Once decided a record can no longer be edited or
// deleted; it only moves along kind-specific steps such as send, pay or return.
// Draft invoices wait for approval too and can be decided without a submit.
//
// Cancelling an undecided record changes only its status. The approval status
// stays PENDING because no approver decided it, and the record is closed:
// it can no longer be approved, rejected, edited or deleted.
//
// Kinds plug in through Spec and the Approvable interface:
//
//	machine := approval.NewMachine(invoiceSpec, db, clubs, enforcer)
//	inv, err := machine.Approve(ctx, caller, id)
//
// All records share the approvables table. The kind-specific part of a record
// is stored as a JSON payload.
//
// OVERDUE is never stored. A record whose status allows it and whose due date
// is before the current UTC day reads as overdue.
package approval
