package schools

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

const clubColumns = `id, school_id, name, description, lifecycle, created_at, updated_at`

// Store persists schools, their admin emails and clubs
type Store struct {
	db  storage.DBTX
	now func() time.Time
}

// NewStore creates a tenancy store
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// WithTx returns a copy of the store bound to tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	c := *s
	c.db = tx
	return &c
}

// CreateSchool inserts a school row. Admin emails are written separately.
func (s *Store) CreateSchool(ctx context.Context, school *School) error {
	now := s.now().UTC()
	if school.Lifecycle == "" {
		school.Lifecycle = lifecycle.Active
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO schools (name, lifecycle, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, school.Name, string(school.Lifecycle), now, now).Scan(&school.ID)
	if err != nil {
		return storage.MapError(err, "create school", fmt.Sprintf("school %q", school.Name))
	}
	school.CreatedAt = now
	school.UpdatedAt = now
	return nil
}

// GetSchool loads a school with its admin emails
func (s *Store) GetSchool(ctx context.Context, id int64) (*School, error) {
	var school School
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, lifecycle, created_at, updated_at FROM schools WHERE id = $1`, id,
	).Scan(&school.ID, &school.Name, &state, &school.CreatedAt, &school.UpdatedAt)
	if err != nil {
		return nil, storage.MapError(err, "get school", fmt.Sprintf("school %d", id))
	}
	if school.Lifecycle, err = lifecycle.Parse(state); err != nil {
		return nil, apperr.Internal(err, "corrupt school row")
	}

	if school.AdminEmails, err = s.AdminEmails(ctx, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// ListSchools returns every school ordered by id, without admin emails
func (s *Store) ListSchools(ctx context.Context) ([]*School, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, lifecycle, created_at, updated_at FROM schools ORDER BY id`)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list schools")
	}
	defer rows.Close()

	out := []*School{}
	for rows.Next() {
		var school School
		var state string
		if err := rows.Scan(&school.ID, &school.Name, &state, &school.CreatedAt, &school.UpdatedAt); err != nil {
			return nil, apperr.Internal(err, "failed to scan school")
		}
		if school.Lifecycle, err = lifecycle.Parse(state); err != nil {
			return nil, apperr.Internal(err, "corrupt school row")
		}
		out = append(out, &school)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list schools")
	}
	return out, nil
}

// DeleteSchool removes the school row
func (s *Store) DeleteSchool(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schools WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "failed to delete school")
	}
	return expectRow(result, "school %d not found", id)
}

// AdminEmails lists a school's admin emails in insertion order
func (s *Store) AdminEmails(ctx context.Context, schoolID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email FROM school_admin_emails WHERE school_id = $1 ORDER BY created_at, email`, schoolID,
	)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list admin emails")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, apperr.Internal(err, "failed to scan admin email")
		}
		out = append(out, email)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list admin emails")
	}
	return out, nil
}

// AddAdminEmail lists email as an admin of the school
func (s *Store) AddAdminEmail(ctx context.Context, schoolID int64, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO school_admin_emails (school_id, email, created_at) VALUES ($1, $2, $3)`,
		schoolID, email, s.now().UTC(),
	)
	if err != nil {
		return storage.MapError(err, "add admin email", fmt.Sprintf("admin email %s", email))
	}
	return nil
}

// RemoveAdminEmail drops email from the school's admin list
func (s *Store) RemoveAdminEmail(ctx context.Context, schoolID int64, email string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM school_admin_emails WHERE school_id = $1 AND email = $2`, schoolID, email,
	)
	if err != nil {
		return apperr.Internal(err, "failed to remove admin email")
	}
	return nil
}

// IsAdminElsewhere reports whether email is an admin of any school other than schoolID
func (s *Store) IsAdminElsewhere(ctx context.Context, email string, schoolID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM school_admin_emails WHERE email = $1 AND school_id <> $2`, email, schoolID,
	).Scan(&n)
	if err != nil {
		return false, apperr.Internal(err, "failed to check admin email")
	}
	return n > 0, nil
}

// IsAdminOf reports whether schoolID lists email as an admin
func (s *Store) IsAdminOf(ctx context.Context, schoolID int64, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM school_admin_emails WHERE school_id = $1 AND email = $2`, schoolID, email,
	).Scan(&n)
	if err != nil {
		return false, apperr.Internal(err, "failed to check admin email")
	}
	return n > 0, nil
}

// EnsureAdminEmail lists email as an admin of schoolID unless it already is
func (s *Store) EnsureAdminEmail(ctx context.Context, schoolID int64, email string) error {
	listed, err := s.IsAdminOf(ctx, schoolID, email)
	if err != nil || listed {
		return err
	}
	return s.AddAdminEmail(ctx, schoolID, email)
}

// CreateClub inserts a club
func (s *Store) CreateClub(ctx context.Context, club *Club) error {
	now := s.now().UTC()
	if club.Lifecycle == "" {
		club.Lifecycle = lifecycle.Active
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO clubs (school_id, name, description, lifecycle, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, club.SchoolID, club.Name, club.Description, string(club.Lifecycle), now, now).Scan(&club.ID)
	if err != nil {
		return storage.MapError(err, "create club", fmt.Sprintf("club %q", club.Name))
	}
	club.CreatedAt = now
	club.UpdatedAt = now
	return nil
}

// GetClub loads a club
func (s *Store) GetClub(ctx context.Context, id int64) (*Club, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clubColumns+` FROM clubs WHERE id = $1`, id)
	club, err := scanClub(row)
	if err != nil {
		return nil, storage.MapError(err, "get club", fmt.Sprintf("club %d", id))
	}
	return club, nil
}

// LookupClub implements rbac.ClubLookup
func (s *Store) LookupClub(ctx context.Context, clubID int64) (*rbac.ClubRef, error) {
	club, err := s.GetClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	return club.Ref(), nil
}

// ListClubs returns a school's clubs ordered by id
func (s *Store) ListClubs(ctx context.Context, schoolID int64) ([]*Club, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clubColumns+` FROM clubs WHERE school_id = $1 ORDER BY id`, schoolID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list clubs")
	}
	defer rows.Close()

	out := []*Club{}
	for rows.Next() {
		club, err := scanClub(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan club")
		}
		out = append(out, club)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list clubs")
	}
	return out, nil
}

// UpdateClub writes name, description and lifecycle
func (s *Store) UpdateClub(ctx context.Context, club *Club) error {
	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE clubs SET name = $1, description = $2, lifecycle = $3, updated_at = $4
		WHERE id = $5
	`, club.Name, club.Description, string(club.Lifecycle), now, club.ID)
	if err != nil {
		return storage.MapError(err, "update club", fmt.Sprintf("club %q", club.Name))
	}
	if err := expectRow(result, "club %d not found", club.ID); err != nil {
		return err
	}
	club.UpdatedAt = now
	return nil
}

// DeleteClub removes the club row and the club's approvable records
func (s *Store) DeleteClub(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM approvables WHERE club_id = $1`, id); err != nil {
		return apperr.Internal(err, "failed to delete club records")
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM clubs WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "failed to delete club")
	}
	return expectRow(result, "club %d not found", id)
}

func expectRow(result sql.Result, format string, args ...interface{}) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal(err, "failed to get rows affected")
	}
	if rows == 0 {
		return apperr.NotFound(format, args...)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanClub(row scanner) (*Club, error) {
	var club Club
	var state string
	err := row.Scan(
		&club.ID,
		&club.SchoolID,
		&club.Name,
		&club.Description,
		&state,
		&club.CreatedAt,
		&club.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if club.Lifecycle, err = lifecycle.Parse(state); err != nil {
		return nil, err
	}
	return &club, nil
}
