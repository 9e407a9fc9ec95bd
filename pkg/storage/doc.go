// Package storage owns the relational database shared by every service package.
//
// # Overview
//
// Members, schools, clubs, role grants, invoices, checkouts, bearer tokens and
// audit events all live in one SQL database. The service packages write their own
// queries against *sql.DB; this package provides the pieces they have in common:
//
//   - Open: connect with pooling settings from Config and verify with a ping
//   - RunMigrations: apply the versioned schema for a Dialect
//   - WithTx: run a function inside a transaction, rolling back on error
//   - MapError: turn driver errors into apperr kinds (not found, conflict, internal)
//   - NewRedisClient: the optional Redis connection used by caches and rate limiters
//
// # Dialects
//
// Two drivers are supported. PostgreSQL (lib/pq) is the production backend and
// SQLite (go-sqlite3) serves tests and single-node installs:
//
//	cfg := storage.DefaultConfig()
//	cfg.Driver = "sqlite3"
//	cfg.URL = "file:club.db"
//	db, err := storage.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	dialect, _ := cfg.Dialect()
//	applied, err := storage.RunMigrations(ctx, db, dialect)
//
// Queries are written once for both: $n placeholders, RETURNING id and UTC
// timestamps. Migration DDL uses a small set of tokens that expand per dialect
// (serial keys and timestamp columns).
//
// SQLite connections are capped at one open connection so that writers serialise
// and in-memory databases survive between calls.
//
// # Testing
//
// NewTestDB returns a migrated in-memory SQLite database closed by t.Cleanup.
// RequireDatabase connects to TEST_POSTGRES_URL and skips when it is unset.
// Unit tests that need to assert exact SQL use go-sqlmock instead.
package storage
