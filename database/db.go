package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"neon/backend/migrations"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var DB *sql.DB

// InitDB opens the sqlite database at path, stores it in DB and applies
// the migrations.
func InitDB(path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := Open(path)
	if err != nil {
		return err
	}
	if err := migrations.RunMigrations(db, logger); err != nil {
		db.Close()
		return err
	}
	DB = db
	logger.Info("database ready", zap.String("path", path))
	return nil
}

// Open connects to the sqlite database at path without migrating it.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != MemoryPath {
		// Add connection parameters to better handle concurrency
		dsn = path + "?_journal=WAL&_timeout=10000&_busy_timeout=10000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == MemoryPath {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Minute * 5)

		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, err
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Reset removes the database file at path so the next InitDB starts empty.
func Reset(path string) error {
	if path == MemoryPath {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// Close closes DB if it is open.
func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}
