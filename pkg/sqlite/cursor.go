package sqlite

import (
	"context"
	"time"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// Cursor walks the rows of a running query. A cursor either owns its statement,
// when it came from Conn.ExecQuery or Statement.ExecQueryOnce, or borrows the
// statement of the Statement that created it.
type Cursor struct {
	conn   *Conn
	h      *handle
	owned  bool
	eof    bool
	cols   int
	pos    int // rows returned so far
	policy types.RetryPolicy
}

func newCursor(c *Conn, h *handle, owned, eof bool, p types.RetryPolicy) *Cursor {
	pos := 1
	if eof {
		pos = 0
	}
	return &Cursor{
		pos:    pos,
		conn:   c,
		h:      h,
		owned:  owned,
		eof:    eof,
		cols:   h.stmt.ColumnCount(),
		policy: p,
	}
}

// Owned reports whether the cursor owns its statement.
func (q *Cursor) Owned() bool { return q.owned }

// Move transfers the cursor's state, ownership included, to a new Cursor and leaves
// q detached.
func (q *Cursor) Move() *Cursor {
	n := *q
	q.h = nil
	q.owned = false
	q.eof = true
	return &n
}

// Eof reports whether the cursor has passed the last row. A detached or finalized
// cursor is always at the end.
func (q *Cursor) Eof() bool {
	if _, err := q.h.get(); err != nil {
		return true
	}
	return q.eof
}

// NumFields returns the number of result columns.
func (q *Cursor) NumFields() int { return q.cols }

// NextRow advances to the next row. It does nothing at the end. On error an owned
// statement is finalized, a borrowed one is reset, and the cursor becomes unusable.
//
// The engine restarts a statement whose step fails, so a contention retry replays
// the rows already returned. That is only done inside an open transaction, whose
// snapshot keeps the replay identical; otherwise the contention error is returned
// without a retry.
func (q *Cursor) NextRow() error {
	return q.NextRowContext(context.Background())
}

// NextRowContext is NextRow with cancellation.
func (q *Cursor) NextRowContext(ctx context.Context) error {
	stmt, err := q.h.get()
	if err != nil {
		return err
	}
	if q.eof {
		return nil
	}
	end, err := q.conn.begin(ctx)
	if err != nil {
		return err
	}
	defer end()

	r := retrier{conn: q.conn, op: "next_row", policy: q.policy, resume: q.replay}
	row, err := r.step(ctx, stmt)
	if err != nil {
		if q.owned {
			_ = q.h.finalize()
		} else {
			_ = stmt.Reset()
		}
		q.h = nil
		q.eof = true
		return err
	}
	q.eof = !row
	if row {
		q.pos++
	}
	return nil
}

// replay steps a restarted statement back onto the current row.
func (q *Cursor) replay(s engine.Stmt) (bool, error) {
	if q.conn.db.Autocommit() {
		return false, nil
	}
	for i := 0; i < q.pos; i++ {
		row, err := s.Step()
		if err != nil {
			return false, err
		}
		if !row {
			return false, nil
		}
	}
	return true, nil
}

// Finalize releases the statement if the cursor owns it and detaches the cursor.
// It is safe to call more than once.
func (q *Cursor) Finalize() error {
	h := q.h
	q.h = nil
	q.eof = true
	if !q.owned {
		return nil
	}
	return h.finalize()
}

// field validates a column index against the current statement.
func (q *Cursor) field(i int) (engine.Stmt, error) {
	stmt, err := q.h.get()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= q.cols {
		return nil, types.ErrInvalidFieldIndex
	}
	return stmt, nil
}

// FieldIndex returns the index of the named column.
func (q *Cursor) FieldIndex(name string) (int, error) {
	stmt, err := q.h.get()
	if err != nil {
		return 0, err
	}
	for i := 0; i < q.cols; i++ {
		if stmt.ColumnName(i) == name {
			return i, nil
		}
	}
	return 0, types.ErrInvalidFieldName
}

// FieldName returns the name of column i.
func (q *Cursor) FieldName(i int) (string, error) {
	stmt, err := q.field(i)
	if err != nil {
		return "", err
	}
	return stmt.ColumnName(i), nil
}

// FieldDeclType returns the declared type of column i, or "" for expressions.
func (q *Cursor) FieldDeclType(i int) (string, error) {
	stmt, err := q.field(i)
	if err != nil {
		return "", err
	}
	return stmt.ColumnDeclType(i), nil
}

// FieldDataType returns the storage class of column i in the current row.
func (q *Cursor) FieldDataType(i int) (engine.ColumnType, error) {
	stmt, err := q.field(i)
	if err != nil {
		return 0, err
	}
	return stmt.ColumnType(i), nil
}

// FieldValue returns column i as text. NULL reads as "".
func (q *Cursor) FieldValue(i int) (string, error) {
	stmt, err := q.field(i)
	if err != nil {
		return "", err
	}
	if stmt.ColumnType(i) == engine.TypeNull {
		return "", nil
	}
	return stmt.ColumnText(i), nil
}

// FieldValueByName is FieldValue for the named column.
func (q *Cursor) FieldValueByName(name string) (string, error) {
	i, err := q.FieldIndex(name)
	if err != nil {
		return "", err
	}
	return q.FieldValue(i)
}

// IsNull reports whether column i is NULL in the current row.
func (q *Cursor) IsNull(i int) (bool, error) {
	t, err := q.FieldDataType(i)
	if err != nil {
		return false, err
	}
	return t == engine.TypeNull, nil
}

// IsNullByName is IsNull for the named column.
func (q *Cursor) IsNullByName(name string) (bool, error) {
	i, err := q.FieldIndex(name)
	if err != nil {
		return false, err
	}
	return q.IsNull(i)
}

// Int returns column i as an int, or def when it is NULL.
func (q *Cursor) Int(i int, def int) (int, error) {
	v, err := q.Int64(i, int64(def))
	return int(v), err
}

// IntByName is Int for the named column.
func (q *Cursor) IntByName(name string, def int) (int, error) {
	i, err := q.FieldIndex(name)
	if err != nil {
		return def, err
	}
	return q.Int(i, def)
}

// Int64 returns column i as an int64, or def when it is NULL.
func (q *Cursor) Int64(i int, def int64) (int64, error) {
	stmt, err := q.field(i)
	if err != nil {
		return def, err
	}
	if stmt.ColumnType(i) == engine.TypeNull {
		return def, nil
	}
	return stmt.ColumnInt64(i), nil
}

// Int64ByName is Int64 for the named column.
func (q *Cursor) Int64ByName(name string, def int64) (int64, error) {
	i, err := q.FieldIndex(name)
	if err != nil {
		return def, err
	}
	return q.Int64(i, def)
}

// Float returns column i as a float64, or def when it is NULL.
func (q *Cursor) Float(i int, def float64) (float64, error) {
	stmt, err := q.field(i)
	if err != nil {
		return def, err
	}
	if stmt.ColumnType(i) == engine.TypeNull {
		return def, nil
	}
	return stmt.ColumnFloat(i), nil
}

// FloatByName is Float for the named column.
func (q *Cursor) FloatByName(name string, def float64) (float64, error) {
	i, err := q.FieldIndex(name)
	if err != nil {
		return def, err
	}
	return q.Float(i, def)
}

// String returns column i as text, or def when it is NULL.
func (q *Cursor) String(i int, def string) (string, error) {
	stmt, err := q.field(i)
	if err != nil {
		return def, err
	}
	if stmt.ColumnType(i) == engine.TypeNull {
		return def, nil
	}
	return stmt.ColumnText(i), nil
}

// StringByName is String for the named column.
func (q *Cursor) StringByName(name string, def string) (string, error) {
	i, err := q.FieldIndex(name)
	if err != nil {
		return def, err
	}
	return q.String(i, def)
}

// Bytes returns a copy of column i as a blob. NULL reads as nil.
func (q *Cursor) Bytes(i int) ([]byte, error) {
	stmt, err := q.field(i)
	if err != nil {
		return nil, err
	}
	if stmt.ColumnType(i) == engine.TypeNull {
		return nil, nil
	}
	return stmt.ColumnBytes(i), nil
}

// BytesByName is Bytes for the named column.
func (q *Cursor) BytesByName(name string) ([]byte, error) {
	i, err := q.FieldIndex(name)
	if err != nil {
		return nil, err
	}
	return q.Bytes(i)
}

// SetMaxRetryCount sets how many times NextRow retries a contended step.
func (q *Cursor) SetMaxRetryCount(n int) { q.policy.MaxRetries = n }

// SetRetryTimeUs sets the pause between NextRow retries in microseconds.
func (q *Cursor) SetRetryTimeUs(us int) { q.policy.Delay = time.Duration(us) * time.Microsecond }
