package extract

import (
	"fmt"
	"time"
)

// ColumnType is the semantic type of a dataset column. Every column must
// carry a concrete type before it can be written; there is no null type.
type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeFloat
	TypeText
	TypeBool
	TypeTimestamp
)

// String returns the human-readable name of the column type.
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// sqlType maps a column type to its DuckDB column type.
func (t ColumnType) sqlType() string {
	switch t {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE"
	case TypeText:
		return "VARCHAR"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// Column is a named, typed column of a dataset.
type Column struct {
	Name string
	Type ColumnType
}

// Dataset is an ordered sequence of named columns with uniform per-column
// types plus the rows beneath them. The column set and types are fixed at
// construction; rows are appended in column order.
type Dataset struct {
	columns []Column
	rows    [][]any
}

// NewDataset creates a dataset with the given column layout.
func NewDataset(columns []Column) *Dataset {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Dataset{columns: cols}
}

// Columns returns the column layout in order.
func (d *Dataset) Columns() []Column {
	return d.columns
}

// NumRows returns the number of rows in the dataset.
func (d *Dataset) NumRows() int {
	return len(d.rows)
}

// Rows returns the underlying row values in column order.
func (d *Dataset) Rows() [][]any {
	return d.rows
}

// Empty reports whether the dataset has no rows or no columns. An empty
// dataset is valid to carry around; the engine rejects it only at write time.
func (d *Dataset) Empty() bool {
	return len(d.columns) == 0 || len(d.rows) == 0
}

// AppendRow adds one row. The value count must match the column count and
// each value must match its column's type.
func (d *Dataset) AppendRow(values ...any) error {
	if len(values) != len(d.columns) {
		return fmt.Errorf("row has %d values, dataset has %d columns", len(values), len(d.columns))
	}
	for i, v := range values {
		if err := checkValueType(v, d.columns[i].Type); err != nil {
			return fmt.Errorf("column %q: %w", d.columns[i].Name, err)
		}
	}
	row := make([]any, len(values))
	copy(row, values)
	d.rows = append(d.rows, row)
	return nil
}

func checkValueType(v any, t ColumnType) error {
	switch t {
	case TypeInteger:
		if _, ok := v.(int64); !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
	case TypeFloat:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
	case TypeText:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case TypeTimestamp:
		if _, ok := v.(time.Time); !ok {
			return fmt.Errorf("expected time.Time, got %T", v)
		}
	}
	return nil
}
