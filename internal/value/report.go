package value

import (
	"fmt"
	"slices"
)

// Report is a tabular value: a fixed column header and row-major cells.
type Report struct {
	columns []string
	cells   []Value
}

// NewReport creates an empty report with the given header.
func NewReport(columns ...string) *Report {
	return &Report{columns: slices.Clone(columns)}
}

func (*Report) value()     {}
func (*Report) Type() Type { return TypeReport }

// String returns the JSON form of the report.
func (r *Report) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// Columns returns the column header.
func (r *Report) Columns() []string {
	return slices.Clone(r.columns)
}

// Append adds one row. The row must have exactly one cell per column.
func (r *Report) Append(row ...Value) error {
	if len(row) != len(r.columns) {
		return fmt.Errorf("report row has %d cells, header has %d columns", len(row), len(r.columns))
	}
	for _, v := range row {
		if v == nil {
			v = Null{}
		}
		r.cells = append(r.cells, v)
	}
	return nil
}

// Len returns the number of rows.
func (r *Report) Len() int {
	if r == nil || len(r.columns) == 0 {
		return 0
	}
	return len(r.cells) / len(r.columns)
}

// Row returns row i.
func (r *Report) Row(i int) []Value {
	width := len(r.columns)
	return slices.Clone(r.cells[i*width : (i+1)*width])
}

// Rows returns every row in insertion order.
func (r *Report) Rows() [][]Value {
	rows := make([][]Value, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		rows = append(rows, r.Row(i))
	}
	return rows
}

// Object returns row i as an object keyed by column name.
func (r *Report) Object(i int) *Object {
	obj := NewObject()
	for c, v := range r.Row(i) {
		obj.Set(r.columns[c], v)
	}
	return obj
}

// Clone returns a deep copy.
func (r *Report) Clone() *Report {
	c := &Report{columns: slices.Clone(r.columns), cells: make([]Value, len(r.cells))}
	for i, v := range r.cells {
		c.cells[i] = cloneValue(v)
	}
	return c
}
