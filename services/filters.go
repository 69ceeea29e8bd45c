package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"neon/backend/database"
	"neon/backend/metrics"
	"neon/backend/models"
	"neon/backend/query"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// FilterTablePrefix starts the filter key of saved tables created without one.
const FilterTablePrefix = "filterTable"

// FilterTableService stores filter tables per user and sends their compiled
// filters to the query service.
type FilterTableService struct {
	client QueryClient
	logger *zap.Logger
}

func NewFilterTableService(client QueryClient, logger *zap.Logger) *FilterTableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterTableService{client: client, logger: logger}
}

// CreateFilterTable stores a new filter table for userID
func (s *FilterTableService) CreateFilterTable(userID string, t *models.SavedFilterTable) (*models.SavedFilterTable, error) {
	if err := t.Validate(); err != nil {
		return nil, &query.InvalidClauseError{Clause: "filterTable", Reason: err.Error()}
	}

	saved := *t
	saved.ID = uuid.New().String()
	saved.UserID = userID
	if saved.FilterKey == "" {
		saved.FilterKey = FilterTablePrefix + "-" + uuid.New().String()
	}
	if saved.Columns == nil {
		saved.Columns = []string{}
	}
	if saved.Rows == nil {
		saved.Rows = []models.FilterRowInput{}
	}
	now := time.Now().UTC()
	saved.CreatedAt = now
	saved.UpdatedAt = now

	columns, err := json.Marshal(saved.Columns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode columns: %w", err)
	}

	tx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO filter_tables (id, user_id, name, filter_key, data_source_name, dataset_id, and_clauses, columns, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, saved.ID, saved.UserID, saved.Name, saved.FilterKey, saved.DataSourceName, saved.DatasetID,
		saved.AndClauses, string(columns), saved.CreatedAt, saved.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("filter table %q: %w", saved.Name, ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert filter table: %w", err)
	}
	if err := insertRows(tx, saved.ID, saved.Rows); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit filter table: %w", err)
	}

	s.logger.Info("filter table created",
		zap.String("id", saved.ID),
		zap.String("user", userID),
		zap.Int("rows", len(saved.Rows)))
	return &saved, nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// GetFilterTables lists the tables owned by userID, newest first
func (s *FilterTableService) GetFilterTables(userID string) ([]models.SavedFilterTable, error) {
	rows, err := database.DB.Query(`
		SELECT id, user_id, name, filter_key, data_source_name, dataset_id, and_clauses, columns, created_at, updated_at
		FROM filter_tables
		WHERE user_id = ?
		ORDER BY created_at DESC, name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter tables: %w", err)
	}

	tables := []models.SavedFilterTable{}
	for rows.Next() {
		t, err := scanFilterTable(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, *t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read filter tables: %w", err)
	}
	rows.Close()

	for i := range tables {
		if tables[i].Rows, err = loadRows(tables[i].ID); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

// GetFilterTable retrieves one table of userID. Tables of other users are
// reported as ErrNotFound.
func (s *FilterTableService) GetFilterTable(userID, id string) (*models.SavedFilterTable, error) {
	row := database.DB.QueryRow(`
		SELECT id, user_id, name, filter_key, data_source_name, dataset_id, and_clauses, columns, created_at, updated_at
		FROM filter_tables
		WHERE id = ? AND user_id = ?
	`, id, userID)
	t, err := scanFilterTable(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t.Rows, err = loadRows(t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateFilterTable replaces the settings and rows of a stored table. The
// filter key is kept unless the update sets one.
func (s *FilterTableService) UpdateFilterTable(userID, id string, t *models.SavedFilterTable) (*models.SavedFilterTable, error) {
	existing, err := s.GetFilterTable(userID, id)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, &query.InvalidClauseError{Clause: "filterTable", Reason: err.Error()}
	}

	updated := *t
	updated.ID = existing.ID
	updated.UserID = existing.UserID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	if updated.FilterKey == "" {
		updated.FilterKey = existing.FilterKey
	}
	if updated.Columns == nil {
		updated.Columns = []string{}
	}
	if updated.Rows == nil {
		updated.Rows = []models.FilterRowInput{}
	}

	columns, err := json.Marshal(updated.Columns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode columns: %w", err)
	}

	tx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE filter_tables
		SET name = ?, filter_key = ?, data_source_name = ?, dataset_id = ?, and_clauses = ?, columns = ?, updated_at = ?
		WHERE id = ?
	`, updated.Name, updated.FilterKey, updated.DataSourceName, updated.DatasetID,
		updated.AndClauses, string(columns), updated.UpdatedAt, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("filter table %q: %w", updated.Name, ErrConflict)
		}
		return nil, fmt.Errorf("failed to update filter table: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM filter_table_rows WHERE table_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to clear filter table rows: %w", err)
	}
	if err := insertRows(tx, id, updated.Rows); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit filter table: %w", err)
	}
	return &updated, nil
}

// DeleteFilterTable deletes a stored table and its rows
func (s *FilterTableService) DeleteFilterTable(userID, id string) error {
	tx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM filter_tables WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete filter table: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM filter_table_rows WHERE table_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete filter table rows: %w", err)
	}
	return tx.Commit()
}

// CompileFilterTable builds the filter a saved table stands for.
func CompileFilterTable(t *models.SavedFilterTable) (*query.Filter, error) {
	f, err := t.Table().BuildFilter(t.DataSourceName, t.DatasetID, t.AndClauses)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// PreviewFilterTable compiles a stored table without sending it.
func (s *FilterTableService) PreviewFilterTable(userID, id string) (*query.Filter, error) {
	t, err := s.GetFilterTable(userID, id)
	if err != nil {
		return nil, err
	}
	return CompileFilterTable(t)
}

// ApplyFilterTable compiles a stored table and replaces the filter held
// under its key on the query service.
func (s *FilterTableService) ApplyFilterTable(ctx context.Context, userID, id string) (*query.Filter, Response, error) {
	t, err := s.GetFilterTable(userID, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := CompileFilterTable(t)
	if err != nil {
		return nil, nil, err
	}
	resp, err := s.client.ReplaceFilter(ctx, t.FilterKey, f)
	if err != nil {
		return nil, nil, err
	}
	metrics.FilterTablesApplied.Inc()
	s.logger.Info("filter table applied",
		zap.String("id", t.ID),
		zap.String("filterKey", t.FilterKey),
		zap.Int("rows", len(t.Rows)))
	return f, resp, nil
}

// RemoveAppliedFilterTable removes the filter held under a stored table's key.
func (s *FilterTableService) RemoveAppliedFilterTable(ctx context.Context, userID, id string) (Response, error) {
	t, err := s.GetFilterTable(userID, id)
	if err != nil {
		return nil, err
	}
	return s.client.RemoveFilter(ctx, t.FilterKey)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFilterTable(row scanner) (*models.SavedFilterTable, error) {
	var t models.SavedFilterTable
	var columns string
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Name,
		&t.FilterKey,
		&t.DataSourceName,
		&t.DatasetID,
		&t.AndClauses,
		&columns,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan filter table: %w", err)
	}
	if err := json.Unmarshal([]byte(columns), &t.Columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns of filter table %s: %w", t.ID, err)
	}
	if t.Columns == nil {
		t.Columns = []string{}
	}
	return &t, nil
}

func loadRows(tableID string) ([]models.FilterRowInput, error) {
	rows, err := database.DB.Query(`
		SELECT column_name, operator, value
		FROM filter_table_rows
		WHERE table_id = ?
		ORDER BY position
	`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter table rows: %w", err)
	}
	defer rows.Close()

	result := []models.FilterRowInput{}
	for rows.Next() {
		var r models.FilterRowInput
		if err := rows.Scan(&r.Column, &r.Operator, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan filter table row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func insertRows(tx *sql.Tx, tableID string, rows []models.FilterRowInput) error {
	for i, r := range rows {
		_, err := tx.Exec(`
			INSERT INTO filter_table_rows (table_id, position, column_name, operator, value)
			VALUES (?, ?, ?, ?, ?)
		`, tableID, i, r.Column, r.Operator, r.Value)
		if err != nil {
			return fmt.Errorf("failed to insert filter table row %d: %w", i, err)
		}
	}
	return nil
}
