package migrations

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	name string
	fn   func(*sql.DB) error
}

// All migrations, in the order they are applied.
var migrations = []migration{
	{"create_filter_tables", CreateFilterTables},
	{"add_filter_tables_user_index", AddFilterTablesUserIndex},
}

// RunMigrations executes all migrations in the correct order
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("running migrations")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE name = ?", m.name).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		if count > 0 {
			logger.Debug("skipping already applied migration", zap.String("migration", m.name))
			continue
		}

		logger.Info("applying migration", zap.String("migration", m.name))
		if err := m.fn(db); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
		if _, err := db.Exec("INSERT INTO migrations (name) VALUES (?)", m.name); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
	}

	logger.Info("all migrations completed")
	return nil
}

// Applied lists the names of the migrations recorded in db.
func Applied(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM migrations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
