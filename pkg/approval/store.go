package approval

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

const recordColumns = `id, kind, number, club_id, school_id, created_by, status, approval_status,
	approved_by, approved_at, rejection_reason, due_date, completed_at, payload, version,
	created_at, updated_at`

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Filter narrows a list query. A nil ClubID means every club.
type Filter struct {
	ClubID         *int64
	Status         *Status
	ApprovalStatus *ApprovalStatus
	Limit          int
	Offset         int
}

func (f *Filter) normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Page is one page of list results
type Page[T Approvable] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// SQLStore persists approvables of one kind in the shared approvables table.
// Every mutating write is conditioned on the prior state and reports whether a row matched.
type SQLStore[T Approvable] struct {
	db   storage.DBTX
	spec *Spec[T]
	now  func() time.Time
}

// NewSQLStore creates a store for spec's kind
func NewSQLStore[T Approvable](db storage.DBTX, spec *Spec[T]) *SQLStore[T] {
	return &SQLStore[T]{db: db, spec: spec, now: time.Now}
}

// Insert writes a new record and fills in its id, version and timestamps
func (s *SQLStore[T]) Insert(ctx context.Context, item T) error {
	rec := item.Header()
	payload, err := item.MarshalPayload()
	if err != nil {
		return apperr.Internal(err, "failed to encode %s payload", s.spec.Kind)
	}

	now := s.now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO approvables (kind, number, club_id, school_id, created_by, status, approval_status,
			rejection_reason, due_date, payload, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
		RETURNING id
	`,
		string(s.spec.Kind), rec.Number, rec.ClubID, rec.SchoolID, rec.CreatedBy,
		string(rec.Status), string(rec.ApprovalStatus), rec.RejectionReason,
		storage.NullTime(utc(rec.DueDate)), string(payload), now, now,
	).Scan(&rec.ID)
	if err != nil {
		return storage.MapError(err, "create "+string(s.spec.Kind), fmt.Sprintf("%s %s", s.spec.Kind, rec.Number))
	}

	rec.Kind = s.spec.Kind
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// Get loads one record of the store's kind
func (s *SQLStore[T]) Get(ctx context.Context, id int64) (T, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM approvables WHERE id = $1 AND kind = $2`, id, string(s.spec.Kind),
	)
	item, err := s.scan(row)
	if err != nil {
		var zero T
		return zero, storage.MapError(err, "get "+string(s.spec.Kind), fmt.Sprintf("%s %d", s.spec.Kind, id))
	}
	return item, nil
}

// List returns a page of records ordered by id together with the unpaged total
func (s *SQLStore[T]) List(ctx context.Context, f Filter) ([]T, int, error) {
	f.normalize()

	where, args := s.where(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM approvables`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(err, "failed to count %s records", s.spec.Kind)
	}

	query := fmt.Sprintf(`SELECT %s FROM approvables%s ORDER BY id LIMIT $%d OFFSET $%d`,
		recordColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, apperr.Internal(err, "failed to list %s records", s.spec.Kind)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := s.scan(rows)
		if err != nil {
			return nil, 0, apperr.Internal(err, "failed to scan %s", s.spec.Kind)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Internal(err, "failed to list %s records", s.spec.Kind)
	}
	return items, total, nil
}

func (s *SQLStore[T]) where(f Filter) (string, []interface{}) {
	clauses := []string{"kind = $1"}
	args := []interface{}{string(s.spec.Kind)}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.ClubID != nil {
		add("club_id = $%d", *f.ClubID)
	}
	if f.ApprovalStatus != nil {
		add("approval_status = $%d", string(*f.ApprovalStatus))
	}
	if f.Status != nil {
		if *f.Status == StatusOverdue {
			// derived: overdue-capable status with a due date before today
			in, inArgs := placeholders(len(args)+1, s.spec.OverdueFrom)
			clauses = append(clauses, "status IN ("+in+")")
			args = append(args, inArgs...)
			add("due_date < $%d", StartOfDay(s.now()))
		} else {
			add("status = $%d", string(*f.Status))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// UpdatePayload rewrites the payload of a record that is still awaiting approval
// and unchanged since it was read
func (s *SQLStore[T]) UpdatePayload(ctx context.Context, item T) (bool, error) {
	rec := item.Header()
	payload, err := item.MarshalPayload()
	if err != nil {
		return false, apperr.Internal(err, "failed to encode %s payload", s.spec.Kind)
	}

	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE approvables
		SET payload = $1, due_date = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND kind = $5 AND version = $6 AND approval_status = $7
	`, string(payload), storage.NullTime(utc(rec.DueDate)), now,
		rec.ID, string(s.spec.Kind), rec.Version, string(ApprovalPending))
	if err != nil {
		return false, apperr.Internal(err, "failed to update %s", s.spec.Kind)
	}
	ok, err := affected(result)
	if ok {
		rec.Version++
		rec.UpdatedAt = now
	}
	return ok, err
}

// Delete removes a record that is still awaiting approval and unchanged since it was read
func (s *SQLStore[T]) Delete(ctx context.Context, rec *Record) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM approvables
		WHERE id = $1 AND kind = $2 AND version = $3 AND approval_status = $4
	`, rec.ID, string(s.spec.Kind), rec.Version, string(ApprovalPending))
	if err != nil {
		return false, apperr.Internal(err, "failed to delete %s", s.spec.Kind)
	}
	return affected(result)
}

// Transition writes rec's workflow fields if the stored status and approval status
// still equal fromStatus and fromApproval
func (s *SQLStore[T]) Transition(ctx context.Context, rec *Record, fromStatus Status, fromApproval ApprovalStatus) (bool, error) {
	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE approvables
		SET status = $1, approval_status = $2, approved_by = $3, approved_at = $4,
			rejection_reason = $5, completed_at = $6, version = version + 1, updated_at = $7
		WHERE id = $8 AND kind = $9 AND status = $10 AND approval_status = $11
	`,
		string(rec.Status), string(rec.ApprovalStatus), storage.NullInt64(rec.ApprovedBy),
		storage.NullTime(utc(rec.ApprovedAt)), rec.RejectionReason, storage.NullTime(utc(rec.CompletedAt)), now,
		rec.ID, string(s.spec.Kind), string(fromStatus), string(fromApproval),
	)
	if err != nil {
		return false, apperr.Internal(err, "failed to transition %s", s.spec.Kind)
	}
	ok, err := affected(result)
	if ok {
		rec.Version++
		rec.UpdatedAt = now
	}
	return ok, err
}

// CountOverdue counts records that read as OVERDUE at now
func (s *SQLStore[T]) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	if len(s.spec.OverdueFrom) == 0 {
		return 0, nil
	}
	in, args := placeholders(3, s.spec.OverdueFrom)
	query := `SELECT COUNT(*) FROM approvables WHERE kind = $1 AND due_date < $2 AND status IN (` + in + `)`

	var n int
	err := s.db.QueryRowContext(ctx, query, append([]interface{}{string(s.spec.Kind), StartOfDay(now)}, args...)...).Scan(&n)
	if err != nil {
		return 0, apperr.Internal(err, "failed to count overdue %s records", s.spec.Kind)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore[T]) scan(row scanner) (T, error) {
	item := s.spec.New()
	rec := item.Header()

	var (
		kind, status, approval string
		approvedBy             sql.NullInt64
		approvedAt, dueDate    sql.NullTime
		completedAt            sql.NullTime
		payload                string
	)
	err := row.Scan(
		&rec.ID,
		&kind,
		&rec.Number,
		&rec.ClubID,
		&rec.SchoolID,
		&rec.CreatedBy,
		&status,
		&approval,
		&approvedBy,
		&approvedAt,
		&rec.RejectionReason,
		&dueDate,
		&completedAt,
		&payload,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		var zero T
		return zero, err
	}

	rec.Kind = Kind(kind)
	if rec.Status, err = s.spec.ParseStatus(status); err != nil {
		var zero T
		return zero, err
	}
	if rec.ApprovalStatus, err = ParseApprovalStatus(approval); err != nil {
		var zero T
		return zero, err
	}
	rec.ApprovedBy = storage.Int64Ptr(approvedBy)
	rec.ApprovedAt = storage.TimePtr(approvedAt)
	rec.DueDate = storage.TimePtr(dueDate)
	rec.CompletedAt = storage.TimePtr(completedAt)

	if err := item.UnmarshalPayload([]byte(payload)); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to decode payload: %w", err)
	}
	return item, nil
}

func placeholders(start int, statuses []Status) (string, []interface{}) {
	marks := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		marks[i] = fmt.Sprintf("$%d", start+i)
		args[i] = string(st)
	}
	return strings.Join(marks, ", "), args
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperr.Internal(err, "failed to get rows affected")
	}
	return n > 0, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
