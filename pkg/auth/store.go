package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

const tokenColumns = `id, member_id, token_hash, token_prefix, expires_at, revoked_at, last_used_at, created_at`

// Store persists API tokens by hash
type Store struct {
	db storage.DBTX
}

// NewStore creates a token store
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db}
}

// Create inserts a token record
func (s *Store) Create(ctx context.Context, t *APIToken) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (member_id, token_hash, token_prefix, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, t.MemberID, t.TokenHash, t.TokenPrefix, storage.NullTime(t.ExpiresAt), t.CreatedAt.UTC()).Scan(&t.ID)
	if err != nil {
		return storage.MapError(err, "create token", "token")
	}
	return nil
}

// GetByHash looks a token up by the hash of its plaintext
func (s *Store) GetByHash(ctx context.Context, hash string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = $1`, hash)
	t, err := scanToken(row)
	if err != nil {
		return nil, storage.MapError(err, "get token", "token")
	}
	return t, nil
}

// Get looks a token up by id
func (s *Store) Get(ctx context.Context, id int64) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE id = $1`, id)
	t, err := scanToken(row)
	if err != nil {
		return nil, storage.MapError(err, "get token", "token")
	}
	return t, nil
}

// ListForMember returns a member's tokens, newest first
func (s *Store) ListForMember(ctx context.Context, memberID int64) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE member_id = $1 ORDER BY id DESC`, memberID,
	)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list tokens")
	}
	defer rows.Close()

	out := []*APIToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan token")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list tokens")
	}
	return out, nil
}

// Touch records a successful use
func (s *Store) Touch(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, at.UTC(), id); err != nil {
		return apperr.Internal(err, "failed to update token")
	}
	return nil
}

// Revoke marks a token revoked. It reports false when the token was already revoked or is unknown.
func (s *Store) Revoke(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, at.UTC(), id,
	)
	if err != nil {
		return false, apperr.Internal(err, "failed to revoke token")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperr.Internal(err, "failed to get rows affected")
	}
	return n > 0, nil
}

// DeleteExpired removes tokens that expired before now
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`, now.UTC(),
	)
	if err != nil {
		return 0, apperr.Internal(err, "failed to delete expired tokens")
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row scanner) (*APIToken, error) {
	var t APIToken
	var expiresAt, revokedAt, lastUsedAt sql.NullTime
	err := row.Scan(
		&t.ID,
		&t.MemberID,
		&t.TokenHash,
		&t.TokenPrefix,
		&expiresAt,
		&revokedAt,
		&lastUsedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ExpiresAt = storage.TimePtr(expiresAt)
	t.RevokedAt = storage.TimePtr(revokedAt)
	t.LastUsedAt = storage.TimePtr(lastUsedAt)
	return &t, nil
}
