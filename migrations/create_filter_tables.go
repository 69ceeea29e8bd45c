package migrations

import (
	"database/sql"
	"fmt"
)

// CreateFilterTables creates the tables holding saved filter tables and
// their rows.
func CreateFilterTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS filter_tables (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			filter_key TEXT NOT NULL,
			data_source_name TEXT NOT NULL,
			dataset_id TEXT NOT NULL,
			and_clauses BOOLEAN NOT NULL DEFAULT 1,
			columns TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(user_id, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create filter_tables: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS filter_table_rows (
			table_id TEXT NOT NULL REFERENCES filter_tables(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			column_name TEXT NOT NULL,
			operator TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (table_id, position)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create filter_table_rows: %w", err)
	}
	return nil
}

// AddFilterTablesUserIndex indexes saved tables by owner.
func AddFilterTablesUserIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_filter_tables_user ON filter_tables(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create filter_tables index: %w", err)
	}
	return nil
}
