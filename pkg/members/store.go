package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

const memberColumns = `id, email, full_name, password_hash, global_role, school_id, lifecycle, created_at, updated_at`

// Store persists members
type Store struct {
	db       storage.DBTX
	hashCost int
	now      func() time.Time
}

// NewStore creates a member store
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db, hashCost: bcrypt.DefaultCost, now: time.Now}
}

// WithTx returns a copy of the store bound to tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	c := *s
	c.db = tx
	return &c
}

// WithHashCost sets the bcrypt cost used for new passwords
func (s *Store) WithHashCost(cost int) *Store {
	s.hashCost = cost
	return s
}

// Create stores a new member. Members start INACTIVE unless a lifecycle is set.
func (s *Store) Create(ctx context.Context, m *Member, password string) error {
	m.Email = NormalizeEmail(m.Email)
	if m.Lifecycle == "" {
		m.Lifecycle = lifecycle.Inactive
	}
	if err := m.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if len(password) < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return apperr.Internal(err, "failed to hash password")
	}
	m.PasswordHash = string(hash)

	query := `
		INSERT INTO members (email, full_name, password_hash, global_role, school_id, lifecycle, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := s.now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		m.Email,
		m.FullName,
		m.PasswordHash,
		string(m.GlobalRole),
		storage.NullInt64(m.SchoolID),
		string(m.Lifecycle),
		now,
		now,
	).Scan(&m.ID)
	if err != nil {
		return storage.MapError(err, "create member", "member")
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// GetByID loads a member regardless of lifecycle
func (s *Store) GetByID(ctx context.Context, id int64) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	m, err := scanMember(row)
	if err != nil {
		return nil, storage.MapError(err, "get member", fmt.Sprintf("member %d", id))
	}
	return m, nil
}

// GetByEmail loads a member by normalized email
func (s *Store) GetByEmail(ctx context.Context, email string) (*Member, error) {
	email = NormalizeEmail(email)
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE email = $1`, email)
	m, err := scanMember(row)
	if err != nil {
		return nil, storage.MapError(err, "get member", fmt.Sprintf("member %s", email))
	}
	return m, nil
}

// ListBySchool returns the members of a school ordered by id
func (s *Store) ListBySchool(ctx context.Context, schoolID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members WHERE school_id = $1 ORDER BY id`, schoolID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list members")
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan member")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list members")
	}
	return out, nil
}

// SetLifecycle activates or soft-deletes a member
func (s *Store) SetLifecycle(ctx context.Context, id int64, state lifecycle.State) error {
	if !state.Valid() {
		return apperr.Validation("invalid lifecycle state: %q", state)
	}
	return s.update(ctx, id, `UPDATE members SET lifecycle = $1, updated_at = $2 WHERE id = $3`, string(state), s.now().UTC(), id)
}

// SetGlobalRole changes a member's global role
func (s *Store) SetGlobalRole(ctx context.Context, id int64, role GlobalRole) error {
	if !role.Valid() {
		return apperr.Validation("invalid global role: %q", role)
	}
	return s.update(ctx, id, `UPDATE members SET global_role = $1, updated_at = $2 WHERE id = $3`, string(role), s.now().UTC(), id)
}

// Delete removes a member permanently
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.update(ctx, id, `DELETE FROM members WHERE id = $1`, id)
}

func (s *Store) update(ctx context.Context, id int64, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Internal(err, "failed to update member")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal(err, "failed to get rows affected")
	}
	if rows == 0 {
		return apperr.NotFound("member %d not found", id)
	}
	return nil
}

// Authenticate checks a password for an ACTIVE member. Every failure is Unauthenticated.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*Member, error) {
	m, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid credentials")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	if !m.IsActive() {
		return nil, apperr.Unauthenticated("member is not active")
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row scanner) (*Member, error) {
	var m Member
	var role, state string
	var schoolID sql.NullInt64

	err := row.Scan(
		&m.ID,
		&m.Email,
		&m.FullName,
		&m.PasswordHash,
		&role,
		&schoolID,
		&state,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if m.GlobalRole, err = ParseGlobalRole(role); err != nil {
		return nil, err
	}
	if m.Lifecycle, err = lifecycle.Parse(state); err != nil {
		return nil, err
	}
	m.SchoolID = storage.Int64Ptr(schoolID)
	return &m, nil
}
