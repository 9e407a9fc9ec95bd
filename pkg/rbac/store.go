package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

const grantColumns = `id, member_id, club_id, school_id, role, lifecycle, granted_by, granted_at, updated_at`

// Store handles club role grant persistence
type Store struct {
	db  storage.DBTX
	now func() time.Time
}

// NewStore creates a new grant store
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// WithTx returns a copy of the store bound to tx
func (s *Store) WithTx(tx *sql.Tx) *Store {
	c := *s
	c.db = tx
	return &c
}

// Upsert creates the (member, club) grant or updates the existing row in place,
// reactivating it. There is never more than one row per pair.
func (s *Store) Upsert(ctx context.Context, g *Grant) error {
	if !g.Role.Valid() {
		return apperr.Validation("invalid club role: %q", g.Role)
	}

	query := `
		INSERT INTO club_role_grants (member_id, club_id, school_id, role, lifecycle, granted_by, granted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (member_id, club_id) DO UPDATE SET
			role = excluded.role,
			lifecycle = excluded.lifecycle,
			granted_by = excluded.granted_by,
			updated_at = excluded.updated_at
		RETURNING id
	`

	now := s.now().UTC()
	g.Lifecycle = lifecycle.Active
	err := s.db.QueryRowContext(ctx, query,
		g.MemberID,
		g.ClubID,
		g.SchoolID,
		string(g.Role),
		string(g.Lifecycle),
		storage.NullInt64(g.GrantedBy),
		now,
		now,
	).Scan(&g.ID)
	if err != nil {
		return storage.MapError(err, "upsert club role grant", "grant")
	}

	// granted_at survives re-grants
	err = s.db.QueryRowContext(ctx, `SELECT granted_at FROM club_role_grants WHERE id = $1`, g.ID).Scan(&g.GrantedAt)
	if err != nil {
		return apperr.Internal(err, "failed to read grant")
	}

	g.UpdatedAt = now
	return nil
}

// Get loads the grant for (member, club) in any lifecycle state
func (s *Store) Get(ctx context.Context, memberID, clubID int64) (*Grant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM club_role_grants WHERE member_id = $1 AND club_id = $2`,
		memberID, clubID,
	)
	g, err := scanGrant(row)
	if err != nil {
		return nil, storage.MapError(err, "get club role grant", fmt.Sprintf("grant for member %d in club %d", memberID, clubID))
	}
	return g, nil
}

// Deactivate soft-deletes an active grant. It reports whether a row changed.
func (s *Store) Deactivate(ctx context.Context, memberID, clubID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE club_role_grants SET lifecycle = $1, updated_at = $2
		WHERE member_id = $3 AND club_id = $4 AND lifecycle = $5
	`, string(lifecycle.Inactive), s.now().UTC(), memberID, clubID, string(lifecycle.Active))
	if err != nil {
		return false, apperr.Internal(err, "failed to revoke club role grant")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperr.Internal(err, "failed to get rows affected")
	}
	return rows > 0, nil
}

// ActiveForMember returns the member's active grants in storage order
func (s *Store) ActiveForMember(ctx context.Context, memberID int64) ([]ClubGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT club_id, role FROM club_role_grants
		WHERE member_id = $1 AND lifecycle = $2
		ORDER BY id
	`, memberID, string(lifecycle.Active))
	if err != nil {
		return nil, apperr.Internal(err, "failed to list member grants")
	}
	defer rows.Close()

	out := []ClubGrant{}
	for rows.Next() {
		var cg ClubGrant
		var role string
		if err := rows.Scan(&cg.ClubID, &role); err != nil {
			return nil, apperr.Internal(err, "failed to scan grant")
		}
		if cg.Role, err = ParseClubRole(role); err != nil {
			return nil, apperr.Internal(err, "corrupt grant row")
		}
		out = append(out, cg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list member grants")
	}
	return out, nil
}

// ListForClub returns the active grants of a club ordered by id
func (s *Store) ListForClub(ctx context.Context, clubID int64) ([]*Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM club_role_grants WHERE club_id = $1 AND lifecycle = $2 ORDER BY id`,
		clubID, string(lifecycle.Active),
	)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list club grants")
	}
	defer rows.Close()

	out := []*Grant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan grant")
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list club grants")
	}
	return out, nil
}

// DeleteForClub removes every grant of a club and returns the affected member ids
func (s *Store) DeleteForClub(ctx context.Context, clubID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT member_id FROM club_role_grants WHERE club_id = $1 ORDER BY id`, clubID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list club grants")
	}
	var memberIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Internal(err, "failed to scan grant")
		}
		memberIDs = append(memberIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list club grants")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM club_role_grants WHERE club_id = $1`, clubID); err != nil {
		return nil, apperr.Internal(err, "failed to delete club grants")
	}
	return memberIDs, nil
}

// DeleteForMember removes every grant held by a member
func (s *Store) DeleteForMember(ctx context.Context, memberID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM club_role_grants WHERE member_id = $1`, memberID); err != nil {
		return apperr.Internal(err, "failed to delete member grants")
	}
	return nil
}

// CountForPair counts rows for (member, club) in any state
func (s *Store) CountForPair(ctx context.Context, memberID, clubID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM club_role_grants WHERE member_id = $1 AND club_id = $2`,
		memberID, clubID,
	).Scan(&n)
	if err != nil {
		return 0, apperr.Internal(err, "failed to count grants")
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row scanner) (*Grant, error) {
	var g Grant
	var role, state string
	var grantedBy sql.NullInt64

	err := row.Scan(
		&g.ID,
		&g.MemberID,
		&g.ClubID,
		&g.SchoolID,
		&role,
		&state,
		&grantedBy,
		&g.GrantedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if g.Role, err = ParseClubRole(role); err != nil {
		return nil, err
	}
	if g.Lifecycle, err = lifecycle.Parse(state); err != nil {
		return nil, err
	}
	g.GrantedBy = storage.Int64Ptr(grantedBy)
	return &g, nil
}
