package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// Machine runs the two-party approval workflow for one approvable kind.
//
// Checks run in a fixed order and the first failure is returned: the record
// must exist, be in a state that allows the transition, the caller must pass
// the guard, and finally the input must validate. Writes are compare-and-set
// so concurrent transitions of one record yield exactly one success.
type Machine[T Approvable] struct {
	spec     *Spec[T]
	store    *SQLStore[T]
	clubs    rbac.ClubLookup
	enforcer *rbac.Enforcer
	audit    *audit.Recorder
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewMachine creates a state machine for spec's kind
func NewMachine[T Approvable](spec *Spec[T], db storage.DBTX, clubs rbac.ClubLookup, enforcer *rbac.Enforcer) *Machine[T] {
	return &Machine[T]{
		spec:     spec,
		store:    NewSQLStore(db, spec),
		clubs:    clubs,
		enforcer: enforcer,
		now:      time.Now,
	}
}

// WithAudit records transitions
func (m *Machine[T]) WithAudit(rec *audit.Recorder) *Machine[T] {
	m.audit = rec
	return m
}

// WithMetrics counts transitions
func (m *Machine[T]) WithMetrics(metrics *observability.Metrics) *Machine[T] {
	m.metrics = metrics
	return m
}

// WithClock replaces the time source
func (m *Machine[T]) WithClock(now func() time.Time) *Machine[T] {
	m.now = now
	m.store.now = now
	return m
}

// Spec returns the kind description
func (m *Machine[T]) Spec() *Spec[T] {
	return m.spec
}

// Create validates item and stores it for clubID as awaiting approval
func (m *Machine[T]) Create(ctx context.Context, caller *members.Member, clubID int64, item T) (_ T, err error) {
	ctx, span := m.start(ctx, "Create", 0)
	defer func() { m.finish(span, "create", err) }()

	var zero T
	club, err := m.clubs.LookupClub(ctx, clubID)
	if err != nil {
		return zero, err
	}
	if !club.Active {
		return zero, apperr.InvalidState("club %d is not active", clubID)
	}
	rs, err := m.enforcer.Enforce(ctx, caller, rbac.ActionCreate, m.resource(&Record{ClubID: club.ID, SchoolID: club.SchoolID}))
	if err != nil {
		return zero, err
	}
	if err := item.Validate(); err != nil {
		return zero, apperr.Validation("%s", err.Error())
	}

	rec := item.Header()
	rec.Kind = m.spec.Kind
	rec.Number = m.number()
	rec.ClubID = club.ID
	rec.SchoolID = club.SchoolID
	rec.CreatedBy = rs.MemberID
	rec.Status = StatusPending
	if m.spec.InitialStatus != nil {
		rec.Status = m.spec.InitialStatus(item)
	}
	rec.ApprovalStatus = ApprovalPending
	rec.ApprovedBy = nil
	rec.ApprovedAt = nil
	rec.RejectionReason = ""
	rec.CompletedAt = nil

	if err := m.store.Insert(ctx, item); err != nil {
		return zero, err
	}
	m.decorate(rec)

	m.log(ctx, rec).Info("record created")
	m.record(ctx, audit.EventTypeApprovalCreate, rs.MemberID, rec, map[string]interface{}{
		"number": rec.Number,
		"status": string(rec.Status),
	})
	return item, nil
}

// Get returns one record the caller may read
func (m *Machine[T]) Get(ctx context.Context, caller *members.Member, id int64) (T, error) {
	var zero T
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	if _, err := m.enforcer.Enforce(ctx, caller, rbac.ActionRead, m.resource(item.Header())); err != nil {
		return zero, err
	}
	m.decorate(item.Header())
	return item, nil
}

// List returns records scoped to the caller's clubs. The requested club is
// resolved by the list policy; a caller without grants gets an empty page.
func (m *Machine[T]) List(ctx context.Context, caller *members.Member, f Filter) (*Page[T], error) {
	rs, err := m.enforcer.Roles(ctx, caller)
	if err != nil {
		return nil, err
	}
	scope, err := m.enforcer.ListScope(rs, f.ClubID)
	if err != nil {
		return nil, err
	}

	f.normalize()
	page := &Page[T]{Items: []T{}, Limit: f.Limit, Offset: f.Offset}
	if scope.Empty {
		return page, nil
	}
	if scope.AllClubs {
		f.ClubID = nil
	} else {
		clubID := scope.ClubID
		f.ClubID = &clubID
		if err := m.enforcer.Check(ctx, rs, rbac.ActionList, m.resource(&Record{ClubID: clubID})); err != nil {
			return nil, err
		}
	}

	items, total, err := m.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		m.decorate(item.Header())
	}
	page.Items = items
	page.Total = total
	return page, nil
}

// Edit applies a change to a record that still awaits approval
func (m *Machine[T]) Edit(ctx context.Context, caller *members.Member, id int64, apply func(T) error) (_ T, err error) {
	ctx, span := m.start(ctx, "Edit", id)
	defer func() { m.finish(span, "edit", err) }()

	var zero T
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	rec := item.Header()
	if !m.spec.IsAwaiting(rec) {
		return zero, m.notAwaiting(rec)
	}
	rs, err := m.enforcer.Enforce(ctx, caller, rbac.ActionEdit, m.resource(rec))
	if err != nil {
		return zero, err
	}

	if err := apply(item); err != nil {
		return zero, asValidation(err)
	}
	if err := item.Validate(); err != nil {
		return zero, apperr.Validation("%s", err.Error())
	}

	ok, err := m.store.UpdatePayload(ctx, item)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, m.lost(ctx, id)
	}
	m.decorate(rec)

	m.log(ctx, rec).Info("record edited")
	m.record(ctx, audit.EventTypeApprovalEdit, rs.MemberID, rec, nil)
	return item, nil
}

// Delete removes a record that still awaits approval
func (m *Machine[T]) Delete(ctx context.Context, caller *members.Member, id int64) (err error) {
	ctx, span := m.start(ctx, "Delete", id)
	defer func() { m.finish(span, "delete", err) }()

	item, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	rec := item.Header()
	if !m.spec.IsAwaiting(rec) {
		return m.notAwaiting(rec)
	}
	rs, err := m.enforcer.Enforce(ctx, caller, rbac.ActionDelete, m.resource(rec))
	if err != nil {
		return err
	}

	ok, err := m.store.Delete(ctx, rec)
	if err != nil {
		return err
	}
	if !ok {
		return m.lost(ctx, id)
	}

	m.log(ctx, rec).Info("record deleted")
	m.record(ctx, audit.EventTypeApprovalDelete, rs.MemberID, rec, map[string]interface{}{
		"number": rec.Number,
	})
	return nil
}

// Approve marks a pending record APPROVED
func (m *Machine[T]) Approve(ctx context.Context, caller *members.Member, id int64) (_ T, err error) {
	ctx, span := m.start(ctx, "Approve", id)
	defer func() { m.finish(span, "approve", err) }()
	return m.decide(ctx, caller, id, rbac.ActionApprove, func(rec *Record) error { return nil })
}

// Reject marks a pending record REJECTED. The trimmed reason must not be empty.
func (m *Machine[T]) Reject(ctx context.Context, caller *members.Member, id int64, reason string) (_ T, err error) {
	ctx, span := m.start(ctx, "Reject", id)
	defer func() { m.finish(span, "reject", err) }()
	return m.decide(ctx, caller, id, rbac.ActionReject, func(rec *Record) error {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return apperr.Validation("rejection reason is required")
		}
		rec.RejectionReason = reason
		return nil
	})
}

func (m *Machine[T]) decide(ctx context.Context, caller *members.Member, id int64, action rbac.Action, prepare func(*Record) error) (T, error) {
	var zero T
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	rec := item.Header()
	if !m.spec.IsDecidable(rec) {
		return zero, m.notAwaiting(rec)
	}
	rs, err := m.enforcer.Enforce(ctx, caller, action, m.resource(rec))
	if err != nil {
		return zero, err
	}

	next := *rec
	if err := prepare(&next); err != nil {
		return zero, err
	}
	now := m.now().UTC()
	approver := rs.MemberID
	next.ApprovedBy = &approver
	next.ApprovedAt = &now

	eventType := audit.EventTypeApprovalApprove
	if action == rbac.ActionReject {
		next.Status = StatusRejected
		next.ApprovalStatus = ApprovalRejected
		eventType = audit.EventTypeApprovalReject
	} else {
		next.Status = StatusApproved
		next.ApprovalStatus = ApprovalApproved
	}

	ok, err := m.store.Transition(ctx, &next, rec.Status, rec.ApprovalStatus)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, m.lost(ctx, id)
	}
	*rec = next
	m.decorate(rec)

	m.log(ctx, rec).WithField("approver_id", approver).Info("record " + strings.ToLower(string(rec.ApprovalStatus)))
	meta := map[string]interface{}{"number": rec.Number}
	if rec.RejectionReason != "" {
		meta["reason"] = rec.RejectionReason
	}
	m.record(ctx, eventType, approver, rec, meta)
	return item, nil
}

// Advance moves a record along a kind-specific step such as send, pay or return
func (m *Machine[T]) Advance(ctx context.Context, caller *members.Member, id int64, step Step) (_ T, err error) {
	ctx, span := m.start(ctx, step.Name, id)
	defer func() { m.finish(span, step.Name, err) }()

	var zero T
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	rec := item.Header()
	if !hasStatus(step.From, rec.Status) {
		return zero, apperr.InvalidState("cannot %s %s %s in status %s", step.Name, m.spec.Kind, rec.Number, rec.Status)
	}
	rs, err := m.enforcer.Enforce(ctx, caller, rbac.Action(step.Action), m.resource(rec))
	if err != nil {
		return zero, err
	}

	next := *rec
	next.Status = step.To
	if step.Complete {
		today := StartOfDay(m.now())
		next.CompletedAt = &today
	}

	ok, err := m.store.Transition(ctx, &next, rec.Status, rec.ApprovalStatus)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, m.lost(ctx, id)
	}
	from := rec.Status
	*rec = next
	m.decorate(rec)

	m.log(ctx, rec).WithField("from", string(from)).Info("record " + step.Name)
	m.record(ctx, audit.EventTypeApprovalTransition, rs.MemberID, rec, map[string]interface{}{
		"number": rec.Number,
		"step":   step.Name,
		"from":   string(from),
		"to":     string(rec.Status),
	})
	return item, nil
}

// CountOverdue counts records of this kind that read as OVERDUE now
func (m *Machine[T]) CountOverdue(ctx context.Context) (int, error) {
	return m.store.CountOverdue(ctx, m.now())
}

func (m *Machine[T]) resource(rec *Record) rbac.Resource {
	return rbac.Resource{
		Kind:     rbac.ResourceKind(m.spec.Kind),
		ID:       rec.ID,
		SchoolID: rec.SchoolID,
		ClubID:   rec.ClubID,
	}
}

func (m *Machine[T]) decorate(rec *Record) {
	rec.Overdue = m.spec.IsOverdue(rec, m.now())
}

func (m *Machine[T]) number() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", m.spec.NumberPrefix, m.now().UTC().Format("20060102"), suffix)
}

func (m *Machine[T]) notAwaiting(rec *Record) error {
	return apperr.InvalidState("%s %s is not awaiting approval (status %s, approval %s)",
		m.spec.Kind, rec.Number, rec.Status, rec.ApprovalStatus)
}

// lost explains a compare-and-set write that matched no row
func (m *Machine[T]) lost(ctx context.Context, id int64) error {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	rec := item.Header()
	return apperr.InvalidState("%s %s was changed concurrently (now status %s, approval %s)",
		m.spec.Kind, rec.Number, rec.Status, rec.ApprovalStatus)
}

func (m *Machine[T]) start(ctx context.Context, op string, id int64) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "approval."+op,
		trace.WithAttributes(
			attribute.String("kind", string(m.spec.Kind)),
			attribute.Int64("record_id", id),
		))
}

func (m *Machine[T]) finish(span trace.Span, transition string, err error) {
	defer span.End()
	if err != nil {
		kind := apperr.KindOf(err)
		m.metrics.RecordTransition(string(m.spec.Kind), transition, string(kind))
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		if kind == apperr.KindInternal {
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, fmt.Sprintf("%s failed", transition))
		return
	}
	m.metrics.RecordTransition(string(m.spec.Kind), transition, "ok")
	span.SetStatus(codes.Ok, "")
}

func (m *Machine[T]) log(ctx context.Context, rec *Record) *observability.Logger {
	return observability.FromContext(ctx).WithFields(map[string]interface{}{
		"kind":    string(m.spec.Kind),
		"id":      rec.ID,
		"club_id": rec.ClubID,
		"status":  string(rec.Status),
	})
}

func (m *Machine[T]) record(ctx context.Context, eventType audit.EventType, actorID int64, rec *Record, meta map[string]interface{}) {
	schoolID, clubID := rec.SchoolID, rec.ClubID
	m.audit.Record(ctx, &audit.Event{
		EventType:    eventType,
		ActorID:      &actorID,
		SchoolID:     &schoolID,
		ClubID:       &clubID,
		ResourceType: audit.ResourceType(m.spec.Kind),
		ResourceID:   strconv.FormatInt(rec.ID, 10),
		Metadata:     meta,
	})
}

func asValidation(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Validation("%s", err.Error())
}
