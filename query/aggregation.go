package query

import (
	"encoding/json"
	"fmt"
)

// GroupByFunction buckets a date field before grouping.
type GroupByFunction string

const (
	Year  GroupByFunction = "year"
	Month GroupByFunction = "month"
	Day   GroupByFunction = "day"
	Hour  GroupByFunction = "hour"
)

// AggregateOperation is applied to each group.
type AggregateOperation string

const (
	Count AggregateOperation = "count"
	Sum   AggregateOperation = "sum"
	Avg   AggregateOperation = "avg"
	Min   AggregateOperation = "min"
	Max   AggregateOperation = "max"
)

// SortOrder of distinct and sort clauses.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

func (o SortOrder) isValid() bool {
	return o == Ascending || o == Descending
}

// GroupByField is one entry of a group-by: a plain field, or a function
// over a field when Operation is set.
type GroupByField struct {
	Field     string
	Operation GroupByFunction
	Name      string
}

// Field groups by the raw value of name.
func Field(name string) GroupByField {
	return GroupByField{Field: name}
}

// GroupByFunc groups by fn(field) and exposes the result as name.
func GroupByFunc(fn GroupByFunction, field, name string) GroupByField {
	return GroupByField{Field: field, Operation: fn, Name: name}
}

// IsFunction reports whether the entry applies a function.
func (g GroupByField) IsFunction() bool {
	return g.Operation != ""
}

func (g GroupByField) validate() error {
	if g.Field == "" {
		return invalid(typeGroupBy, "field name is required")
	}
	if !g.IsFunction() {
		return nil
	}
	switch g.Operation {
	case Year, Month, Day, Hour:
	default:
		return invalid(typeGroupBy, "unknown function %q", g.Operation)
	}
	if g.Name == "" {
		return invalid(typeGroupBy, "function %s(%s) needs an output name", g.Operation, g.Field)
	}
	return nil
}

type groupByFunctionWire struct {
	Type      string          `json:"type"`
	Operation GroupByFunction `json:"operation"`
	Field     string          `json:"field"`
	Name      string          `json:"name"`
}

// MarshalJSON encodes plain fields as strings and functions as objects.
func (g GroupByField) MarshalJSON() ([]byte, error) {
	if !g.IsFunction() {
		return json.Marshal(g.Field)
	}
	return json.Marshal(groupByFunctionWire{Type: "function", Operation: g.Operation, Field: g.Field, Name: g.Name})
}

// UnmarshalJSON accepts either form written by MarshalJSON.
func (g *GroupByField) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*g = Field(name)
		return nil
	}
	var fn groupByFunctionWire
	if err := json.Unmarshal(data, &fn); err != nil {
		return fmt.Errorf("decode group by field: %w", err)
	}
	if fn.Type != "function" {
		return invalid(typeGroupBy, "unknown field type %q", fn.Type)
	}
	*g = GroupByFunc(fn.Operation, fn.Field, fn.Name)
	return nil
}

const typeGroupBy = "groupBy"

// GroupByClause groups query results by an ordered list of fields.
type GroupByClause struct {
	Fields []GroupByField
}

// Validate requires at least one well formed field.
func (c *GroupByClause) Validate() error {
	if len(c.Fields) == 0 {
		return invalid(typeGroupBy, "at least one field is required")
	}
	for _, f := range c.Fields {
		if err := f.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *GroupByClause) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type   string         `json:"type"`
		Fields []GroupByField `json:"fields"`
	}{typeGroupBy, c.Fields})
}

func (c *GroupByClause) UnmarshalJSON(data []byte) error {
	var wire struct {
		Fields []GroupByField `json:"fields"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Fields = wire.Fields
	return nil
}

const typeAggregate = "aggregate"

// AggregateClause computes Operation over Field and names the output
// column Name. Field may be empty for count.
type AggregateClause struct {
	Operation AggregateOperation
	Field     string
	Name      string
}

// Validate checks the operation, field and output name.
func (c *AggregateClause) Validate() error {
	switch c.Operation {
	case Count, Sum, Avg, Min, Max:
	default:
		return invalid(typeAggregate, "unknown operation %q", c.Operation)
	}
	if c.Field == "" && c.Operation != Count {
		return invalid(typeAggregate, "%s needs a field", c.Operation)
	}
	if c.Name == "" {
		return invalid(typeAggregate, "output name is required")
	}
	return nil
}

type aggregateWire struct {
	Type      string             `json:"type"`
	Operation AggregateOperation `json:"aggregationOperation"`
	Field     *string            `json:"aggregationField"`
	Name      string             `json:"name"`
}

func (c *AggregateClause) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	wire := aggregateWire{Type: typeAggregate, Operation: c.Operation, Name: c.Name}
	if c.Field != "" {
		wire.Field = &c.Field
	}
	return json.Marshal(wire)
}

func (c *AggregateClause) UnmarshalJSON(data []byte) error {
	var wire aggregateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Operation = wire.Operation
	c.Name = wire.Name
	c.Field = ""
	if wire.Field != nil {
		c.Field = *wire.Field
	}
	return nil
}

const typeDistinct = "distinct"

// DistinctClause asks for the distinct values of Field.
type DistinctClause struct {
	Field     string
	SortOrder SortOrder
}

func (c *DistinctClause) Validate() error {
	if c.Field == "" {
		return invalid(typeDistinct, "field name is required")
	}
	if c.SortOrder != "" && !c.SortOrder.isValid() {
		return invalid(typeDistinct, "unknown sort order %q", c.SortOrder)
	}
	return nil
}

type distinctWire struct {
	Type      string    `json:"type"`
	Field     string    `json:"field"`
	SortOrder SortOrder `json:"sortOrder,omitempty"`
}

func (c *DistinctClause) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(distinctWire{Type: typeDistinct, Field: c.Field, SortOrder: c.SortOrder})
}

func (c *DistinctClause) UnmarshalJSON(data []byte) error {
	var wire distinctWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Field = wire.Field
	c.SortOrder = wire.SortOrder
	return nil
}

// SortClause orders results by a field.
type SortClause struct {
	Field     string    `json:"fieldName"`
	SortOrder SortOrder `json:"sortOrder"`
}

func (c SortClause) validate() error {
	if c.Field == "" {
		return invalid("sort", "field name is required")
	}
	if !c.SortOrder.isValid() {
		return invalid("sort", "unknown sort order %q", c.SortOrder)
	}
	return nil
}
