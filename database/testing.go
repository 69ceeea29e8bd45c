package database

import (
	"database/sql"
	"testing"

	"neon/backend/migrations"
)

// SetupTestDB opens a migrated in-memory database, installs it as DB and
// returns it with a cleanup func restoring the previous DB.
func SetupTestDB(t testing.TB) (*sql.DB, func()) {
	t.Helper()

	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := migrations.RunMigrations(db, nil); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	oldDB := DB
	DB = db
	return db, func() {
		DB = oldDB
		db.Close()
	}
}
