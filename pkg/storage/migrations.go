package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration represents a database migration. {{id}} and {{ts}} are expanded per dialect.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS members (
					id {{id}},
					email VARCHAR(320) NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					global_role VARCHAR(32) NOT NULL,
					school_id BIGINT,
					lifecycle VARCHAR(16) NOT NULL,
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_members_school ON members(school_id);
			`,
		},
		{
			Version:     2,
			Description: "Create schools, admin emails and clubs",
			SQL: `
				CREATE TABLE IF NOT EXISTS schools (
					id {{id}},
					name VARCHAR(255) NOT NULL UNIQUE,
					lifecycle VARCHAR(16) NOT NULL,
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS school_admin_emails (
					school_id BIGINT NOT NULL,
					email VARCHAR(320) NOT NULL,
					created_at {{ts}} NOT NULL,
					PRIMARY KEY (school_id, email)
				);
				CREATE INDEX IF NOT EXISTS idx_school_admin_emails_email ON school_admin_emails(email);

				CREATE TABLE IF NOT EXISTS clubs (
					id {{id}},
					school_id BIGINT NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					lifecycle VARCHAR(16) NOT NULL,
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL,
					UNIQUE (school_id, name)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create club role grants",
			SQL: `
				CREATE TABLE IF NOT EXISTS club_role_grants (
					id {{id}},
					member_id BIGINT NOT NULL,
					club_id BIGINT NOT NULL,
					school_id BIGINT NOT NULL,
					role VARCHAR(32) NOT NULL,
					lifecycle VARCHAR(16) NOT NULL,
					granted_by BIGINT,
					granted_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL,
					UNIQUE (member_id, club_id)
				);
				CREATE INDEX IF NOT EXISTS idx_club_role_grants_club ON club_role_grants(club_id);
			`,
		},
		{
			Version:     4,
			Description: "Create approvable transactions",
			SQL: `
				CREATE TABLE IF NOT EXISTS approvables (
					id {{id}},
					kind VARCHAR(16) NOT NULL,
					number VARCHAR(64) NOT NULL,
					club_id BIGINT NOT NULL,
					school_id BIGINT NOT NULL,
					created_by BIGINT NOT NULL,
					status VARCHAR(16) NOT NULL,
					approval_status VARCHAR(16) NOT NULL,
					approved_by BIGINT,
					approved_at {{ts}},
					rejection_reason TEXT NOT NULL DEFAULT '',
					due_date {{ts}},
					completed_at {{ts}},
					payload TEXT NOT NULL,
					version BIGINT NOT NULL DEFAULT 1,
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL,
					UNIQUE (kind, number)
				);
				CREATE INDEX IF NOT EXISTS idx_approvables_club ON approvables(kind, club_id);
			`,
		},
		{
			Version:     5,
			Description: "Create api tokens",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id {{id}},
					member_id BIGINT NOT NULL,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					expires_at {{ts}},
					revoked_at {{ts}},
					last_used_at {{ts}},
					created_at {{ts}} NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_api_tokens_member ON api_tokens(member_id);
			`,
		},
		{
			Version:     6,
			Description: "Create audit events",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id {{id}},
					occurred_at {{ts}} NOT NULL,
					event_type VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL,
					actor_id BIGINT,
					school_id BIGINT,
					club_id BIGINT,
					resource_type VARCHAR(32) NOT NULL DEFAULT '',
					resource_id VARCHAR(64) NOT NULL DEFAULT '',
					request_id VARCHAR(100) NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					metadata TEXT
				);
				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred ON audit_events(occurred_at);
			`,
		},
	}
}

func expand(dialect Dialect, ddl string) string {
	var r *strings.Replacer
	switch dialect {
	case DialectSQLite:
		r = strings.NewReplacer("{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{ts}}", "TIMESTAMP")
	default:
		r = strings.NewReplacer("{{id}}", "BIGSERIAL PRIMARY KEY", "{{ts}}", "TIMESTAMPTZ")
	}
	return r.Replace(ddl)
}

// RunMigrations applies pending migrations and returns how many ran
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) (int, error) {
	_, err := db.ExecContext(ctx, expand(dialect, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at {{ts}} NOT NULL
		)
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return 0, fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	applied := 0
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, expand(dialect, migration.SQL)); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
				migration.Version, migration.Description, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied++
	}

	return applied, nil
}
