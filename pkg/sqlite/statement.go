package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// Statement is a compiled statement that can be bound and run repeatedly. It owns
// its engine statement until Finalize, Move or ExecQueryOnce.
type Statement struct {
	conn   *Conn
	h      *handle
	policy types.RetryPolicy
}

// Move transfers ownership of the compiled statement to a new Statement and leaves
// s empty.
func (s *Statement) Move() *Statement {
	n := &Statement{conn: s.conn, h: s.h, policy: s.policy}
	s.h = nil
	return n
}

// Owned reports whether s still holds a compiled statement.
func (s *Statement) Owned() bool {
	_, err := s.h.get()
	return err == nil
}

func (s *Statement) check() error {
	if err := s.conn.notOpen(); err != nil {
		return err
	}
	_, err := s.h.get()
	return err
}

// ExecDML runs the statement to completion and returns the number of rows it
// changed. The statement is reset afterwards, keeping its bindings.
func (s *Statement) ExecDML() (int, error) {
	return s.ExecDMLContext(context.Background())
}

// ExecDMLContext is ExecDML with cancellation.
func (s *Statement) ExecDMLContext(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	end, err := s.conn.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer end()

	stmt := s.h.stmt
	row, err := s.conn.step(ctx, "stmt_exec_dml", stmt, s.policy)
	if err != nil {
		_ = stmt.Reset()
		return 0, err
	}
	if row {
		_ = stmt.Reset()
		return 0, types.ErrUnexpectedRow
	}
	n := s.conn.db.Changes()
	if err := stmt.Reset(); err != nil {
		return 0, s.conn.failed("stmt_exec_dml", err)
	}
	return n, nil
}

// ExecQuery steps the statement once and returns a cursor over its rows. The cursor
// borrows the statement: it stops working once s is finalized.
func (s *Statement) ExecQuery() (*Cursor, error) {
	return s.execQuery(context.Background(), false)
}

// ExecQueryOnce is ExecQuery for a statement that will not be run again. Ownership
// moves to the cursor and s is left empty.
func (s *Statement) ExecQueryOnce() (*Cursor, error) {
	return s.execQuery(context.Background(), true)
}

// ExecQueryContext is ExecQuery with cancellation of the first step.
func (s *Statement) ExecQueryContext(ctx context.Context) (*Cursor, error) {
	return s.execQuery(ctx, false)
}

func (s *Statement) execQuery(ctx context.Context, once bool) (*Cursor, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	end, err := s.conn.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	h := s.h
	row, err := s.conn.step(ctx, "stmt_exec_query", h.stmt, s.policy)
	if err != nil {
		_ = h.stmt.Reset()
		return nil, err
	}
	if once {
		s.h = nil
	}
	return newCursor(s.conn, h, once, !row, s.policy), nil
}

func (s *Statement) bindError(kind string, pos int, err error) error {
	if err == nil {
		return nil
	}
	var e *types.Error
	if !errors.As(err, &e) {
		return err
	}
	return types.NewError(e.Code, fmt.Sprintf("error binding %s param %d", kind, pos))
}

// Bind binds v to the 1-based parameter pos. Supported types are nil, string,
// []byte, bool, the integer types up to 64 bits, float32, float64 and time.Time,
// which is bound as RFC 3339 text.
func (s *Statement) Bind(pos int, v any) error {
	switch v := v.(type) {
	case nil:
		return s.BindNull(pos)
	case string:
		return s.BindText(pos, v)
	case []byte:
		return s.BindBytes(pos, v)
	case bool:
		if v {
			return s.BindInt64(pos, 1)
		}
		return s.BindInt64(pos, 0)
	case int:
		return s.BindInt64(pos, int64(v))
	case int8:
		return s.BindInt64(pos, int64(v))
	case int16:
		return s.BindInt64(pos, int64(v))
	case int32:
		return s.BindInt64(pos, int64(v))
	case int64:
		return s.BindInt64(pos, v)
	case uint8:
		return s.BindInt64(pos, int64(v))
	case uint16:
		return s.BindInt64(pos, int64(v))
	case uint32:
		return s.BindInt64(pos, int64(v))
	case float32:
		return s.BindFloat(pos, float64(v))
	case float64:
		return s.BindFloat(pos, v)
	case time.Time:
		return s.BindText(pos, v.Format(time.RFC3339Nano))
	}
	return types.NewError(sqlite3.SQLITE_MISMATCH, fmt.Sprintf("error binding param %d: unsupported type %T", pos, v))
}

// BindNamed binds v to the parameter with the given name, including its prefix
// character, such as ":id".
func (s *Statement) BindNamed(name string, v any) error {
	pos, err := s.BindParamIndex(name)
	if err != nil {
		return err
	}
	return s.Bind(pos, v)
}

// BindText binds a string to parameter pos.
func (s *Statement) BindText(pos int, v string) error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return s.bindError("string", pos, stmt.BindText(pos, v))
}

// BindInt binds a 32-bit integer to parameter pos.
func (s *Statement) BindInt(pos int, v int32) error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return s.bindError("int", pos, stmt.BindInt64(pos, int64(v)))
}

// BindInt64 binds a 64-bit integer to parameter pos.
func (s *Statement) BindInt64(pos int, v int64) error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return s.bindError("int64", pos, stmt.BindInt64(pos, v))
}

// BindFloat binds a float to parameter pos.
func (s *Statement) BindFloat(pos int, v float64) error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return s.bindError("double", pos, stmt.BindFloat(pos, v))
}

// BindBytes binds a blob to parameter pos.
func (s *Statement) BindBytes(pos int, v []byte) error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return s.bindError("blob", pos, stmt.BindBytes(pos, v))
}

// BindNull binds NULL to parameter pos.
func (s *Statement) BindNull(pos int) error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return s.bindError("NULL", pos, stmt.BindNull(pos))
}

// BindParamCount returns the number of parameters the statement takes.
func (s *Statement) BindParamCount() (int, error) {
	stmt, err := s.h.get()
	if err != nil {
		return 0, err
	}
	return stmt.BindParamCount(), nil
}

// BindParamIndex returns the position of a named parameter.
func (s *Statement) BindParamIndex(name string) (int, error) {
	stmt, err := s.h.get()
	if err != nil {
		return 0, err
	}
	pos := stmt.BindParamIndex(name)
	if pos == 0 {
		return 0, types.NewError(sqlite3.SQLITE_RANGE, fmt.Sprintf("unknown parameter %q", name))
	}
	return pos, nil
}

// Reset rewinds the statement so it can run again. Bindings are kept.
func (s *Statement) Reset() error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return stmt.Reset()
}

// ClearBindings sets every parameter back to NULL.
func (s *Statement) ClearBindings() error {
	stmt, err := s.h.get()
	if err != nil {
		return err
	}
	return stmt.ClearBindings()
}

// Finalize releases the compiled statement if s still owns it. It is safe to call
// more than once.
func (s *Statement) Finalize() error {
	h := s.h
	s.h = nil
	return h.finalize()
}

// SetMaxRetryCount sets the retry count for this statement and cursors created
// from it afterwards.
func (s *Statement) SetMaxRetryCount(n int) { s.policy.MaxRetries = n }

// SetRetryTimeUs sets the pause between retries in microseconds.
func (s *Statement) SetRetryTimeUs(us int) { s.policy.Delay = time.Duration(us) * time.Microsecond }
