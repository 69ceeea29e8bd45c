package models

import (
	"errors"
	"fmt"
	"time"

	"neon/backend/query"
)

// SavedFilterTable is a filter table stored for a user
type SavedFilterTable struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	Name           string           `json:"name"`
	FilterKey      string           `json:"filterKey"`
	DataSourceName string           `json:"dataSourceName"`
	DatasetID      string           `json:"datasetId"`
	AndClauses     bool             `json:"andClauses"` // false joins rows with or
	Columns        []string         `json:"columns"`
	Rows           []FilterRowInput `json:"rows"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// FilterRowInput is one stored (column, operator, value) row. Value is the
// raw text typed by the user.
type FilterRowInput struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Validate checks the fields a saved table needs before it is stored.
func (t *SavedFilterTable) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.DataSourceName == "" || t.DatasetID == "" {
		return errors.New("dataSourceName and datasetId are required")
	}
	for i, row := range t.Rows {
		if row.Column == "" {
			return fmt.Errorf("row %d: column is required", i)
		}
		if !query.Operator(row.Operator).IsValid() {
			return fmt.Errorf("row %d: unknown operator %q", i, row.Operator)
		}
	}
	return nil
}

// Table builds the editable filter table for the saved rows.
func (t *SavedFilterTable) Table() *query.FilterTable {
	ft := query.NewFilterTable()
	ft.SetFilterKey(t.FilterKey)
	ft.SetColumns(t.Columns)
	for _, row := range t.Rows {
		ft.AddRow(query.NewFilterRow(row.Column, query.Operator(row.Operator), row.Value))
	}
	return ft
}
