// Package audit records who did what to which school, club, member or
// approvable record.
//
// Services hold a *Recorder, which stamps events and swallows sink failures:
//
//	rec := audit.NewRecorder(audit.NewMultiLogger(dbLogger, audit.LogLogger{}))
//	rec.Record(ctx, &audit.Event{
//		EventType:    audit.EventTypeApprovalApprove,
//		ActorID:      &caller.ID,
//		ResourceType: audit.ResourceTypeInvoice,
//		ResourceID:   "17",
//	})
//
// DBLogger persists events in the audit_events table created by the storage
// migrations and supports filtered search, newest first.
package audit
