// Package query builds the predicate trees and queries sent to the remote
// query service and encodes them in its JSON wire format.
//
//	q := query.NewQuery().
//		SelectFrom("test", "tweets").
//		WhereClause(query.And(
//			query.Where("retweets", query.OpGreaterThan, 5),
//			query.Where("lang", query.OpEqual, "en"),
//		)).
//		GroupBy("user").
//		Aggregate(query.Count, "*", "count")
package query

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Operator is a comparison operator of a where clause.
type Operator string

const (
	OpEqual              Operator = "="
	OpNotEqual           Operator = "!="
	OpGreaterThan        Operator = ">"
	OpLessThan           Operator = "<"
	OpGreaterThanOrEqual Operator = ">="
	OpLessThanOrEqual    Operator = "<="
)

// Operators lists the supported operators in display order.
func Operators() []Operator {
	return []Operator{OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual}
}

// IsValid reports whether op is one of the supported operators.
func (op Operator) IsValid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual:
		return true
	}
	return false
}

// BooleanKind combines the children of a BooleanClause.
type BooleanKind string

const (
	KindAnd BooleanKind = "and"
	KindOr  BooleanKind = "or"
)

const typeWhere = "where"

// TimeLayout is the format dates take on the wire.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Clause is a node of a predicate tree: a *WhereClause or a *BooleanClause.
type Clause interface {
	ClauseType() string
	Validate() error
}

// WhereClause compares a field against a value.
type WhereClause struct {
	Field    string
	Operator Operator
	Value    interface{}

	// set when the value given to Where was not a JSON scalar
	valueErr error
}

// Where creates a comparison leaf. Numbers are stored as float64 and
// time.Time values as UTC strings in TimeLayout.
func Where(field string, op Operator, value interface{}) *WhereClause {
	v, err := NormalizeValue(value)
	return &WhereClause{Field: field, Operator: op, Value: v, valueErr: err}
}

// ClauseType returns "where".
func (w *WhereClause) ClauseType() string {
	return typeWhere
}

// Validate checks the field, operator and value.
func (w *WhereClause) Validate() error {
	if w.Field == "" {
		return invalid(typeWhere, "field name is required")
	}
	if !w.Operator.IsValid() {
		return invalid(typeWhere, "unknown operator %q", w.Operator)
	}
	if w.valueErr != nil {
		return invalid(typeWhere, "field %s: %v", w.Field, w.valueErr)
	}
	return nil
}

type whereWire struct {
	Type string      `json:"type"`
	Lhs  string      `json:"lhs"`
	Op   Operator    `json:"op"`
	Rhs  interface{} `json:"rhs"`
}

// MarshalJSON encodes the clause as {"type":"where","lhs","op","rhs"}.
func (w *WhereClause) MarshalJSON() ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(whereWire{Type: typeWhere, Lhs: w.Field, Op: w.Operator, Rhs: w.Value})
}

// BooleanClause joins an ordered list of clauses with and/or.
type BooleanClause struct {
	Kind    BooleanKind
	Clauses []Clause
}

// And wraps clauses in a single "and" node, keeping argument order.
func And(clauses ...Clause) *BooleanClause {
	return &BooleanClause{Kind: KindAnd, Clauses: clauses}
}

// Or wraps clauses in a single "or" node, keeping argument order.
func Or(clauses ...Clause) *BooleanClause {
	return &BooleanClause{Kind: KindOr, Clauses: clauses}
}

// ClauseType returns "and" or "or".
func (b *BooleanClause) ClauseType() string {
	return string(b.Kind)
}

// Validate checks the kind and every child recursively.
func (b *BooleanClause) Validate() error {
	if b.Kind != KindAnd && b.Kind != KindOr {
		return invalid("boolean", "unknown kind %q", b.Kind)
	}
	if len(b.Clauses) == 0 {
		return invalid(string(b.Kind), "at least one clause is required")
	}
	for i, c := range b.Clauses {
		if c == nil {
			return invalid(string(b.Kind), "clause %d is nil", i)
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the clause as {"type":"and"|"or","clauses":[...]}.
func (b *BooleanClause) MarshalJSON() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type    BooleanKind `json:"type"`
		Clauses []Clause    `json:"clauses"`
	}{b.Kind, b.Clauses})
}

// NormalizeValue converts a Go value into the JSON scalar the query service
// expects: string, float64, bool or nil.
func NormalizeValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string, bool:
		return v, nil
	case float64:
		return checkFloat(v)
	case float32:
		return checkFloat(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return checkFloat(f)
	case time.Time:
		return FormatTime(v), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", value)
}

func checkFloat(f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("value %v is not a finite number", f)
	}
	return f, nil
}

// FormatTime renders t the way dates are sent to the query service.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
