package sqlite

import (
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// Table is a materialized query result with a movable current row. Cells are kept as
// text; NULL is stored as "" and cannot be told apart from an empty string.
type Table struct {
	names []string
	cells []string // row-major
	rows  int
	cur   int
	valid bool
}

// tableBuilder accumulates rows for GetTable.
type tableBuilder struct {
	names []string
	cells []string
	rows  int
}

// add appends the current row of s. Every statement of a script that returns rows
// must return the same number of columns.
func (b *tableBuilder) add(s engine.Stmt) error {
	n := s.ColumnCount()
	if b.names == nil {
		b.names = make([]string, n)
		for i := range b.names {
			b.names[i] = s.ColumnName(i)
		}
	} else if n != len(b.names) {
		return types.NewError(sqlite3.SQLITE_ERROR, "GetTable called with two or more incompatible queries")
	}
	for i := 0; i < n; i++ {
		if s.ColumnType(i) == engine.TypeNull {
			b.cells = append(b.cells, "")
			continue
		}
		b.cells = append(b.cells, s.ColumnText(i))
	}
	b.rows++
	return nil
}

// mark returns a func that drops every row added after the call.
func (b *tableBuilder) mark() func() {
	names, cells, rows := b.names, len(b.cells), b.rows
	return func() {
		b.names, b.cells, b.rows = names, b.cells[:cells], rows
	}
}

func (b *tableBuilder) table() *Table {
	return &Table{names: b.names, cells: b.cells, rows: b.rows, valid: true}
}

func (t *Table) check() error {
	if t == nil || !t.valid {
		return types.ErrNullResults
	}
	return nil
}

// NumFields returns the number of columns.
func (t *Table) NumFields() (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return len(t.names), nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.rows, nil
}

// Row returns the index of the current row.
func (t *Table) Row() (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.cur, nil
}

// SetRow makes row the current row.
func (t *Table) SetRow(row int) error {
	if err := t.check(); err != nil {
		return err
	}
	if row < 0 || row >= t.rows {
		return types.ErrInvalidRowIndex
	}
	t.cur = row
	return nil
}

// FieldName returns the name of column i.
func (t *Table) FieldName(i int) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	if i < 0 || i >= len(t.names) {
		return "", types.ErrInvalidFieldIndex
	}
	return t.names[i], nil
}

// FieldIndex returns the index of the named column.
func (t *Table) FieldIndex(name string) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	for i, n := range t.names {
		if n == name {
			return i, nil
		}
	}
	return 0, types.ErrInvalidFieldName
}

// FieldValue returns column i of the current row.
func (t *Table) FieldValue(i int) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	if i < 0 || i >= len(t.names) {
		return "", types.ErrInvalidFieldIndex
	}
	if t.rows == 0 {
		return "", types.ErrInvalidRowIndex
	}
	return t.cells[t.cur*len(t.names)+i], nil
}

// FieldValueByName is FieldValue for the named column.
func (t *Table) FieldValueByName(name string) (string, error) {
	i, err := t.FieldIndex(name)
	if err != nil {
		return "", err
	}
	return t.FieldValue(i)
}

// IsNull reports whether column i of the current row is NULL or empty.
func (t *Table) IsNull(i int) (bool, error) {
	v, err := t.FieldValue(i)
	return v == "" && err == nil, err
}

// IsNullByName is IsNull for the named column.
func (t *Table) IsNullByName(name string) (bool, error) {
	i, err := t.FieldIndex(name)
	if err != nil {
		return false, err
	}
	return t.IsNull(i)
}

// Int parses column i of the current row as an integer, returning def for NULL.
// Text without a leading number reads as 0.
func (t *Table) Int(i int, def int) (int, error) {
	v, err := t.FieldValue(i)
	if err != nil || v == "" {
		return def, err
	}
	return int(atoi(v)), nil
}

// IntByName is Int for the named column.
func (t *Table) IntByName(name string, def int) (int, error) {
	i, err := t.FieldIndex(name)
	if err != nil {
		return def, err
	}
	return t.Int(i, def)
}

// Float parses column i of the current row as a float, returning def for NULL.
func (t *Table) Float(i int, def float64) (float64, error) {
	v, err := t.FieldValue(i)
	if err != nil || v == "" {
		return def, err
	}
	return atof(v), nil
}

// FloatByName is Float for the named column.
func (t *Table) FloatByName(name string, def float64) (float64, error) {
	i, err := t.FieldIndex(name)
	if err != nil {
		return def, err
	}
	return t.Float(i, def)
}

// String returns column i of the current row, or def for NULL.
func (t *Table) String(i int, def string) (string, error) {
	v, err := t.FieldValue(i)
	if err != nil || v == "" {
		return def, err
	}
	return v, nil
}

// StringByName is String for the named column.
func (t *Table) StringByName(name string, def string) (string, error) {
	i, err := t.FieldIndex(name)
	if err != nil {
		return def, err
	}
	return t.String(i, def)
}

// Finalize releases the rows. Every later call fails with ErrNullResults.
func (t *Table) Finalize() {
	if t == nil {
		return
	}
	t.names, t.cells, t.rows, t.cur = nil, nil, 0, 0
	t.valid = false
}
