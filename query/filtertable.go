package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FilterRow is one (column, operator, value) line of a filter table. Value
// is the raw text typed by the user and is parsed with ParseValue.
type FilterRow struct {
	Column          string     `json:"columnValue"`
	Operator        Operator   `json:"operatorValue"`
	Value           string     `json:"value"`
	ColumnOptions   []string   `json:"columnOptions,omitempty"`
	OperatorOptions []Operator `json:"operatorOptions,omitempty"`
}

// NewFilterRow creates a row without per-row options.
func NewFilterRow(column string, op Operator, value string) FilterRow {
	return FilterRow{Column: column, Operator: op, Value: value}
}

// Clause turns the row into a where clause with its value parsed.
func (r FilterRow) Clause() *WhereClause {
	return Where(r.Column, r.Operator, ParseValue(r.Value))
}

// FilterTable is an ordered, editable list of filter rows that compiles
// into a Filter. It is owned by one filter-builder session.
type FilterTable struct {
	filterKey       string
	columnOptions   []string
	operatorOptions []Operator
	rows            []FilterRow
}

// NewFilterTable returns an empty table offering every operator.
func NewFilterTable() *FilterTable {
	return &FilterTable{operatorOptions: Operators()}
}

// AddRow appends a row.
func (t *FilterTable) AddRow(row FilterRow) {
	t.rows = append(t.rows, row)
}

// InsertRow inserts row before index. index may equal Len to append.
func (t *FilterTable) InsertRow(index int, row FilterRow) error {
	if index < 0 || index > len(t.rows) {
		return t.outOfRange(index)
	}
	t.rows = append(t.rows, FilterRow{})
	copy(t.rows[index+1:], t.rows[index:])
	t.rows[index] = row
	return nil
}

// RemoveRow deletes and returns the row at index.
func (t *FilterTable) RemoveRow(index int) (FilterRow, error) {
	if index < 0 || index >= len(t.rows) {
		return FilterRow{}, t.outOfRange(index)
	}
	row := t.rows[index]
	t.rows = append(t.rows[:index], t.rows[index+1:]...)
	return row, nil
}

// Row returns the row at index.
func (t *FilterTable) Row(index int) (FilterRow, error) {
	if index < 0 || index >= len(t.rows) {
		return FilterRow{}, t.outOfRange(index)
	}
	return t.rows[index], nil
}

// SetRow replaces the row at index.
func (t *FilterTable) SetRow(index int, row FilterRow) error {
	if index < 0 || index >= len(t.rows) {
		return t.outOfRange(index)
	}
	t.rows[index] = row
	return nil
}

// Clear removes every row.
func (t *FilterTable) Clear() {
	t.rows = nil
}

// Rows returns a copy of the rows in order.
func (t *FilterTable) Rows() []FilterRow {
	out := make([]FilterRow, len(t.rows))
	copy(out, t.rows)
	return out
}

// Len returns the number of rows.
func (t *FilterTable) Len() int {
	return len(t.rows)
}

func (t *FilterTable) SetFilterKey(key string) {
	t.filterKey = key
}

func (t *FilterTable) FilterKey() string {
	return t.filterKey
}

// SetColumns sets the column names offered to the user.
func (t *FilterTable) SetColumns(columns []string) {
	t.columnOptions = columns
}

func (t *FilterTable) Columns() []string {
	return t.columnOptions
}

func (t *FilterTable) OperatorOptions() []Operator {
	return t.operatorOptions
}

func (t *FilterTable) outOfRange(index int) error {
	return fmt.Errorf("filter row %d out of range [0,%d)", index, len(t.rows))
}

// BuildFilter compiles the rows into a filter on the given dataset.
// No rows gives a filter without a predicate, one row gives a bare where
// clause, and more rows are joined into one flat and/or clause in row
// order.
func (t *FilterTable) BuildFilter(dataSourceName, datasetID string, andClauses bool) (*Filter, error) {
	filter := NewFilter().SelectFrom(dataSourceName, datasetID)
	switch len(t.rows) {
	case 0:
	case 1:
		filter.WhereClause(t.rows[0].Clause())
	default:
		filter.WhereClause(BuildCompoundClause(t.rows, andClauses))
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return filter, nil
}

// BuildCompoundClause joins every row with and (andClauses) or or.
func BuildCompoundClause(rows []FilterRow, andClauses bool) *BooleanClause {
	clauses := make([]Clause, 0, len(rows))
	for _, r := range rows {
		clauses = append(clauses, r.Clause())
	}
	if andClauses {
		return And(clauses...)
	}
	return Or(clauses...)
}

// ParseValue converts user input into a where clause value. Checks run in
// a fixed order: numbers, then "" and "null" as null, then `""` as the
// empty string, then "false" and "true", otherwise the input is kept as a
// string.
func ParseValue(raw string) interface{} {
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch raw {
	case "", "null":
		return nil
	case `""`:
		return ""
	case "false":
		return false
	case "true":
		return true
	}
	return raw
}

type filterTableWire struct {
	FilterKey       string     `json:"filterKey"`
	ColumnOptions   []string   `json:"columnOptions"`
	OperatorOptions []Operator `json:"operatorOptions"`
	FilterState     struct {
		Data []FilterRow `json:"data"`
	} `json:"filterState"`
}

func (t *FilterTable) MarshalJSON() ([]byte, error) {
	var wire filterTableWire
	wire.FilterKey = t.filterKey
	wire.ColumnOptions = t.columnOptions
	wire.OperatorOptions = t.operatorOptions
	wire.FilterState.Data = t.Rows()
	return json.Marshal(wire)
}

func (t *FilterTable) UnmarshalJSON(data []byte) error {
	var wire filterTableWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode filter table: %w", err)
	}
	t.filterKey = wire.FilterKey
	t.columnOptions = wire.ColumnOptions
	t.operatorOptions = wire.OperatorOptions
	if len(t.operatorOptions) == 0 {
		t.operatorOptions = Operators()
	}
	t.rows = wire.FilterState.Data
	return nil
}
