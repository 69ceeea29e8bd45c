package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Filter selects a dataset and optionally restricts it with a predicate
// tree rooted at Clause. A Filter without a clause matches everything.
type Filter struct {
	DataSourceName string
	DatasetID      string
	Clause         Clause
}

// NewFilter returns an empty filter
func NewFilter() *Filter {
	return &Filter{}
}

// SelectFrom sets the dataset the filter applies to.
func (f *Filter) SelectFrom(dataSourceName, datasetID string) *Filter {
	f.DataSourceName = dataSourceName
	f.DatasetID = datasetID
	return f
}

// Where replaces the predicate root with a single comparison.
func (f *Filter) Where(field string, op Operator, value interface{}) *Filter {
	f.Clause = Where(field, op, value)
	return f
}

// WhereClause replaces the predicate root with a pre-built clause,
// typically the result of And or Or.
func (f *Filter) WhereClause(c Clause) *Filter {
	f.Clause = c
	return f
}

// Validate checks the dataset identifier and the predicate tree.
func (f *Filter) Validate() error {
	if f.DataSourceName == "" || f.DatasetID == "" {
		return invalid("filter", "data source name and dataset id are required")
	}
	if f.Clause != nil {
		return f.Clause.Validate()
	}
	return nil
}

type filterWire struct {
	DataSourceName string          `json:"dataSourceName"`
	DatasetID      string          `json:"datasetId"`
	WhereClause    json.RawMessage `json:"whereClause,omitempty"`
}

// MarshalJSON encodes the filter, omitting whereClause when there is none.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	wire := filterWire{DataSourceName: f.DataSourceName, DatasetID: f.DatasetID}
	if f.Clause != nil {
		raw, err := json.Marshal(f.Clause)
		if err != nil {
			return nil, err
		}
		wire.WhereClause = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a filter and its clause tree.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var wire filterWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode filter: %w", err)
	}
	clause, err := DecodeClause(wire.WhereClause)
	if err != nil {
		return err
	}
	f.DataSourceName = wire.DataSourceName
	f.DatasetID = wire.DatasetID
	f.Clause = clause
	return nil
}

// DecodeClause decodes a clause tree using each node's type tag. Empty
// input and JSON null decode to a nil Clause.
func DecodeClause(data []byte) (Clause, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode clause: %w", err)
	}

	switch head.Type {
	case typeWhere:
		var wire whereWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decode where clause: %w", err)
		}
		return Where(wire.Lhs, wire.Op, wire.Rhs), nil
	case string(KindAnd), string(KindOr):
		var wire struct {
			Clauses []json.RawMessage `json:"clauses"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decode %s clause: %w", head.Type, err)
		}
		b := &BooleanClause{Kind: BooleanKind(head.Type), Clauses: make([]Clause, 0, len(wire.Clauses))}
		for _, raw := range wire.Clauses {
			child, err := DecodeClause(raw)
			if err != nil {
				return nil, err
			}
			if child == nil {
				return nil, invalid(head.Type, "null child clause")
			}
			b.Clauses = append(b.Clauses, child)
		}
		return b, nil
	}
	return nil, invalid("unknown", "unsupported clause type %q", head.Type)
}
