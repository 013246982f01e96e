// Package dataset provides the in-memory tabular container handed from the
// loader to the file writer: named, typed columns over rectangular rows.
//
// A Dataset is immutable once built. Accessors return copies so callers
// cannot change the rows a writer is about to persist.
package dataset

import (
	"errors"
	"fmt"
)

// Kind is the logical type of a column.
type Kind int

const (
	// KindString holds text cells (string)
	KindString Kind = iota
	// KindInt holds integer cells (int64)
	KindInt
	// KindFloat holds floating point cells (float64)
	KindFloat
	// KindBool holds boolean cells (bool)
	KindBool
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int64"
	case KindFloat:
		return "double"
	case KindBool:
		return "boolean"
	default:
		return "string"
	}
}

// Column describes one named column.
type Column struct {
	Name string
	Kind Kind
}

// ErrEmptyHeader is returned when a dataset is built without columns.
var ErrEmptyHeader = errors.New("dataset has no columns")

// Dataset is a rectangular table. A nil cell is a null value; non-nil
// cells hold the Go type matching their column kind.
type Dataset struct {
	columns []Column
	rows    [][]any
	index   map[string]int
}

// New builds a Dataset from columns and rows, checking that column names are
// unique, that every row has one cell per column and that cells match kinds.
func New(columns []Column, rows [][]any) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, ErrEmptyHeader
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		index[c.Name] = i
	}

	copied := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", r, len(row), len(columns))
		}
		for c, cell := range row {
			if !cellMatches(columns[c].Kind, cell) {
				return nil, fmt.Errorf("row %d column %q: %T does not match %s", r, columns[c].Name, cell, columns[c].Kind)
			}
		}
		copied[r] = append([]any(nil), row...)
	}

	return &Dataset{
		columns: append([]Column(nil), columns...),
		rows:    copied,
		index:   index,
	}, nil
}

func cellMatches(k Kind, cell any) bool {
	if cell == nil {
		return true
	}
	switch cell.(type) {
	case string:
		return k == KindString
	case int64:
		return k == KindInt
	case float64:
		return k == KindFloat
	case bool:
		return k == KindBool
	default:
		return false
	}
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int {
	return len(d.rows)
}

// NumColumns returns the number of columns.
func (d *Dataset) NumColumns() int {
	return len(d.columns)
}

// Columns returns a copy of the column descriptors in provider order.
func (d *Dataset) Columns() []Column {
	return append([]Column(nil), d.columns...)
}

// ColumnNames returns the column names in provider order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the descriptor for name.
func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.columns[i], true
}

// HasColumn reports whether the dataset has a column called name.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// MissingColumns returns the required names absent from the dataset, in
// the order they were given. An empty result means every column is present.
func (d *Dataset) MissingColumns(required []string) []string {
	var missing []string
	for _, name := range required {
		if !d.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Row returns a copy of row i.
func (d *Dataset) Row(i int) []any {
	return append([]any(nil), d.rows[i]...)
}

// Value returns the cell at row i in column name.
func (d *Dataset) Value(i int, name string) (any, bool) {
	c, ok := d.index[name]
	if !ok || i < 0 || i >= len(d.rows) {
		return nil, false
	}
	return d.rows[i][c], true
}

// Each calls fn for every row in order until fn returns false.
// The slice passed to fn must not be retained or modified.
func (d *Dataset) Each(fn func(i int, row []any) bool) {
	for i, row := range d.rows {
		if !fn(i, row) {
			return
		}
	}
}
