// Package table holds the in-memory tabular snapshot passed between sources,
// query engines and the columnar encoder.
package table

import (
	"fmt"
	"time"
)

type Kind int

const (
	String Kind = iota
	Int64
	Float64
	Bool
	Bytes
	Timestamp
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case Bytes:
		return "bytes"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is one named, typed column. A nil entry in Values is a null.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Table is an ordered sequence of columns of equal length.
type Table struct {
	Columns []Column
}

func New(names []string, kinds []Kind) (Table, error) {
	if len(names) != len(kinds) {
		return Table{}, fmt.Errorf("got %d column names and %d kinds", len(names), len(kinds))
	}
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Kind: kinds[i]}
	}
	t := Table{Columns: columns}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// NewStrings builds a table whose columns are all String, which is the shape
// of every query result set.
func NewStrings(names []string) (Table, error) {
	kinds := make([]Kind, len(names))
	return New(names, kinds)
}

func (t *Table) AppendRow(values []any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	for i := range t.Columns {
		t.Columns[i].Values = append(t.Columns[i].Values, values[i])
	}
	return nil
}

func (t Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

func (t Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.Name
	}
	return names
}

// Row returns the values at index i in column order.
func (t Table) Row(i int) []any {
	row := make([]any, len(t.Columns))
	for c, column := range t.Columns {
		row[c] = column.Values[i]
	}
	return row
}

func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	rows := -1
	for i, column := range t.Columns {
		if column.Name == "" {
			return fmt.Errorf("column %d has no name", i)
		}
		if _, ok := seen[column.Name]; ok {
			return fmt.Errorf("duplicate column name %q", column.Name)
		}
		seen[column.Name] = struct{}{}
		if rows >= 0 && len(column.Values) != rows {
			return fmt.Errorf("column %q has %d values, want %d", column.Name, len(column.Values), rows)
		}
		rows = len(column.Values)
		for r, value := range column.Values {
			if !conforms(column.Kind, value) {
				return fmt.Errorf("column %q row %d: %T is not a %s value", column.Name, r, value, column.Kind)
			}
		}
	}
	return nil
}

func conforms(kind Kind, value any) bool {
	if value == nil {
		return true
	}
	switch kind {
	case String:
		_, ok := value.(string)
		return ok
	case Int64:
		_, ok := value.(int64)
		return ok
	case Float64:
		_, ok := value.(float64)
		return ok
	case Bool:
		_, ok := value.(bool)
		return ok
	case Bytes:
		_, ok := value.([]byte)
		return ok
	case Timestamp:
		_, ok := value.(time.Time)
		return ok
	default:
		return false
	}
}
