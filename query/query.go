package query

import (
	"encoding/json"
	"fmt"
)

// Query wraps a Filter with grouping, aggregation, distinct and sort
// clauses. Every builder method returns the receiver so calls chain.
type Query struct {
	Filter         *Filter
	GroupByClause  *GroupByClause
	DistinctClause *DistinctClause
	Aggregates     []*AggregateClause
	Sorts          []SortClause

	// sent as the includefiltered URL parameter, never in the body
	includeFiltered bool
}

// NewQuery returns a query over an empty filter.
func NewQuery() *Query {
	return &Query{Filter: NewFilter()}
}

// SelectFrom sets the dataset the query runs against.
func (q *Query) SelectFrom(dataSourceName, datasetID string) *Query {
	q.Filter.SelectFrom(dataSourceName, datasetID)
	return q
}

// Where replaces the predicate root with a single comparison.
func (q *Query) Where(field string, op Operator, value interface{}) *Query {
	q.Filter.Where(field, op, value)
	return q
}

// WhereClause replaces the predicate root with a pre-built clause.
func (q *Query) WhereClause(c Clause) *Query {
	q.Filter.WhereClause(c)
	return q
}

// GroupBy groups by plain field names, replacing any earlier group-by.
func (q *Query) GroupBy(fields ...string) *Query {
	entries := make([]GroupByField, 0, len(fields))
	for _, f := range fields {
		entries = append(entries, Field(f))
	}
	return q.GroupByFields(entries...)
}

// GroupByFields groups by fields and functions, replacing any earlier
// group-by.
func (q *Query) GroupByFields(fields ...GroupByField) *Query {
	q.GroupByClause = &GroupByClause{Fields: fields}
	return q
}

// Aggregate appends an aggregate. The remote service returns output
// columns in the order aggregates were added.
func (q *Query) Aggregate(op AggregateOperation, field, name string) *Query {
	q.Aggregates = append(q.Aggregates, &AggregateClause{Operation: op, Field: field, Name: name})
	return q
}

// Distinct asks for the distinct values of field, replacing any earlier
// distinct clause. order may be empty.
func (q *Query) Distinct(field string, order SortOrder) *Query {
	q.DistinctClause = &DistinctClause{Field: field, SortOrder: order}
	return q
}

// SortBy appends a sort clause.
func (q *Query) SortBy(field string, order SortOrder) *Query {
	q.Sorts = append(q.Sorts, SortClause{Field: field, SortOrder: order})
	return q
}

// IncludeFiltered makes the query ignore the filters currently registered
// with the query service.
func (q *Query) IncludeFiltered(include bool) *Query {
	q.includeFiltered = include
	return q
}

// IsIncludeFiltered reports the value set by IncludeFiltered.
func (q *Query) IsIncludeFiltered() bool {
	return q.includeFiltered
}

// Validate checks the filter and every clause, and that aggregate output
// names are unique.
func (q *Query) Validate() error {
	if q.Filter == nil {
		return invalid("query", "filter is required")
	}
	if err := q.Filter.Validate(); err != nil {
		return err
	}
	if q.GroupByClause != nil {
		if err := q.GroupByClause.Validate(); err != nil {
			return err
		}
	}
	if q.DistinctClause != nil {
		if err := q.DistinctClause.Validate(); err != nil {
			return err
		}
	}
	names := make(map[string]struct{}, len(q.Aggregates))
	for _, a := range q.Aggregates {
		if a == nil {
			return invalid(typeAggregate, "nil aggregate")
		}
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := names[a.Name]; dup {
			return invalid(typeAggregate, "duplicate output name %q", a.Name)
		}
		names[a.Name] = struct{}{}
	}
	for _, s := range q.Sorts {
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

type queryWire struct {
	Filter         *Filter            `json:"filter"`
	GroupByClause  *GroupByClause     `json:"groupByClause,omitempty"`
	DistinctClause *DistinctClause    `json:"distinctClause,omitempty"`
	Aggregates     []*AggregateClause `json:"aggregates"`
	SortClauses    []SortClause       `json:"sortClauses"`
}

// MarshalJSON encodes the query body posted to the query service.
func (q *Query) MarshalJSON() ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	wire := queryWire{
		Filter:         q.Filter,
		GroupByClause:  q.GroupByClause,
		DistinctClause: q.DistinctClause,
		Aggregates:     q.Aggregates,
		SortClauses:    q.Sorts,
	}
	if wire.Aggregates == nil {
		wire.Aggregates = []*AggregateClause{}
	}
	if wire.SortClauses == nil {
		wire.SortClauses = []SortClause{}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a query body. IncludeFiltered is not part of the
// body and is left false.
func (q *Query) UnmarshalJSON(data []byte) error {
	var wire queryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode query: %w", err)
	}
	if wire.Filter == nil {
		wire.Filter = NewFilter()
	}
	if len(wire.Aggregates) == 0 {
		wire.Aggregates = nil
	}
	if len(wire.SortClauses) == 0 {
		wire.SortClauses = nil
	}
	*q = Query{
		Filter:         wire.Filter,
		GroupByClause:  wire.GroupByClause,
		DistinctClause: wire.DistinctClause,
		Aggregates:     wire.Aggregates,
		Sorts:          wire.SortClauses,
	}
	return nil
}
