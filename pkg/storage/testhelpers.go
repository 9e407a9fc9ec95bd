package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
)

// NewTestDB opens a migrated in-memory SQLite database that is closed when the test ends.
// A single connection keeps the in-memory database alive and serialises writers.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open(string(DialectSQLite), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := RunMigrations(context.Background(), db, DialectSQLite); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// RequireDatabase connects to TEST_POSTGRES_URL or skips the test when it is not set.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_URL environment variable not set (database not available)")
	}

	db, err := sql.Open(string(DialectPostgres), dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}
