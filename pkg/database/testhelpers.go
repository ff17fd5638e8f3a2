package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
)

// OpenTestDB opens a migrated in-memory sqlite database that is closed when the test ends
func OpenTestDB(t testing.TB) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := Migrate(ctx, db, DriverSQLite); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// SkipIfNoPostgres skips the test when TEST_POSTGRES_DSN is not set
func SkipIfNoPostgres(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping Postgres test")
	}
	return dsn
}
