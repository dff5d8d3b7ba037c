package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/engine/enginetest"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

func seedEmp(t *testing.T, c *Conn) {
	t.Helper()
	_, err := c.ExecDML(`
		create table emp(empno integer, empname text, salary real, photo blob);
		insert into emp values(1, 'alice', 1.5, x'00ff10');
		insert into emp values(2, null, null, null);
		insert into emp values(3, 'carol', 3.25, x'');
	`)
	require.NoError(t, err)
}

func TestCursorWalksRows(t *testing.T) {
	c, _ := openTemp(t)
	seedEmp(t, c)

	q, err := c.ExecQuery("select empno, empname from emp order by empno")
	require.NoError(t, err)
	defer q.Finalize()

	var got []string
	for !q.Eof() {
		v, err := q.FieldValue(1)
		require.NoError(t, err)
		got = append(got, v)
		require.NoError(t, q.NextRow())
	}
	assert.Equal(t, []string{"alice", "", "carol"}, got)
}

func TestCursorFieldMetadata(t *testing.T) {
	c, _ := openTemp(t)
	seedEmp(t, c)

	q, err := c.ExecQuery("select empno, empname, salary, photo, 1+1 as two from emp order by empno")
	require.NoError(t, err)
	defer q.Finalize()

	assert.Equal(t, 5, q.NumFields())

	name, err := q.FieldName(1)
	require.NoError(t, err)
	assert.Equal(t, "empname", name)

	i, err := q.FieldIndex("salary")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	decl, err := q.FieldDeclType(0)
	require.NoError(t, err)
	assert.Equal(t, "integer", decl)
	decl, err = q.FieldDeclType(4)
	require.NoError(t, err)
	assert.Empty(t, decl, "expressions have no declared type")

	wantTypes := []engine.ColumnType{engine.TypeInteger, engine.TypeText, engine.TypeFloat, engine.TypeBlob, engine.TypeInteger}
	for i, want := range wantTypes {
		got, err := q.FieldDataType(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "column %d", i)
	}
}

func TestCursorTypedGetters(t *testing.T) {
	c, _ := openTemp(t)
	seedEmp(t, c)

	q, err := c.ExecQuery("select empno, empname, salary, photo from emp order by empno")
	require.NoError(t, err)
	defer q.Finalize()

	n, err := q.Int(0, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	s, err := q.StringByName("empname", "none")
	require.NoError(t, err)
	assert.Equal(t, "alice", s)
	f, err := q.FloatByName("salary", -1)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-9)
	b, err := q.BytesByName("photo")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, b)

	require.NoError(t, q.NextRow())

	null, err := q.IsNullByName("empname")
	require.NoError(t, err)
	assert.True(t, null)
	s, err = q.String(1, "none")
	require.NoError(t, err)
	assert.Equal(t, "none", s)
	f, err = q.Float(2, -1)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, f, 1e-9)
	i64, err := q.Int64ByName("salary", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), i64)
	n, err = q.IntByName("salary", 9)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	b, err = q.Bytes(3)
	require.NoError(t, err)
	assert.Nil(t, b)
	v, err := q.FieldValueByName("empname")
	require.NoError(t, err)
	assert.Empty(t, v)

	null, err = q.IsNull(0)
	require.NoError(t, err)
	assert.False(t, null)
}

func TestCursorFieldErrors(t *testing.T) {
	c, _ := openTemp(t)
	seedEmp(t, c)

	q, err := c.ExecQuery("select empno from emp")
	require.NoError(t, err)
	defer q.Finalize()

	_, err = q.FieldValue(1)
	assert.ErrorIs(t, err, types.ErrInvalidFieldIndex)
	_, err = q.FieldValue(-1)
	assert.ErrorIs(t, err, types.ErrInvalidFieldIndex)
	_, err = q.FieldName(5)
	assert.ErrorIs(t, err, types.ErrInvalidFieldIndex)
	_, err = q.FieldIndex("nope")
	assert.ErrorIs(t, err, types.ErrInvalidFieldName)
	n, err := q.IntByName("nope", 4)
	assert.ErrorIs(t, err, types.ErrInvalidFieldName)
	assert.Equal(t, 4, n)
}

func TestCursorAfterFinalize(t *testing.T) {
	c, _ := openTemp(t)
	seedEmp(t, c)

	q, err := c.ExecQuery("select empno from emp")
	require.NoError(t, err)
	require.NoError(t, q.Finalize())
	require.NoError(t, q.Finalize())

	assert.True(t, q.Eof())
	_, err = q.FieldValue(0)
	assert.ErrorIs(t, err, types.ErrNullStatement)
	assert.ErrorIs(t, q.NextRow(), types.ErrNullStatement)
}

func TestCursorMove(t *testing.T) {
	c, fc := openFake(t, types.RetryPolicy{})
	fc.On("select x from t", enginetest.Plan{Columns: []string{"x"}, Rows: [][]any{{int64(1)}, {int64(2)}}})

	q, err := c.ExecQuery("select x from t")
	require.NoError(t, err)

	moved := q.Move()
	assert.True(t, q.Eof())
	assert.False(t, q.Owned())
	require.NoError(t, q.Finalize(), "a moved-from cursor finalizes nothing")
	assert.Equal(t, 0, fc.Finalized())

	assert.True(t, moved.Owned())
	require.NoError(t, moved.NextRow())
	v, err := moved.FieldValue(0)
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	require.NoError(t, moved.Finalize())
	assert.Equal(t, 1, fc.Finalized())
	assert.Equal(t, 0, fc.Live())
}

func TestCursorNextRowRetries(t *testing.T) {
	c, fc := openFake(t, types.RetryPolicy{MaxRetries: 2})
	fc.On("select x from t", enginetest.Plan{
		Columns: []string{"x"},
		Rows:    [][]any{{int64(1)}, {int64(2)}, {int64(3)}},
		Errs:    []error{nil, nil, enginetest.Locked, enginetest.Locked},
	})
	fc.SetAutocommit(false)

	q, err := c.ExecQuery("select x from t")
	require.NoError(t, err)
	defer q.Finalize()

	var got []int
	for !q.Eof() {
		v, err := q.Int(0, 0)
		require.NoError(t, err)
		got = append(got, v)
		require.NoError(t, q.NextRow())
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	// four steps for the rows and the end, two failed, two replaying rows 1 and 2
	assert.Equal(t, 8, fc.Steps("select x from t"))
	assert.Zero(t, fc.Rollbacks())
}

func TestCursorContentionWithoutSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		autocommit bool
		rollbacks  int
		code       int
	}{
		{"locked in autocommit mode", enginetest.Locked, true, 0, sqlite3.SQLITE_LOCKED},
		{"busy rolls back the snapshot", enginetest.Busy, false, 1, sqlite3.SQLITE_BUSY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fc := openFake(t, types.RetryPolicy{MaxRetries: 5})
			fc.On("select x from t", enginetest.Plan{
				Columns: []string{"x"},
				Rows:    [][]any{{int64(1)}, {int64(2)}},
				Errs:    []error{nil, tt.err},
			})
			fc.SetAutocommit(tt.autocommit)

			q, err := c.ExecQuery("select x from t")
			require.NoError(t, err)
			defer q.Finalize()

			err = q.NextRow()
			assert.Equal(t, tt.code, types.Code(err))
			assert.True(t, q.Eof())
			assert.Equal(t, 2, fc.Steps("select x from t"), "the first row is not returned again")
			assert.Equal(t, tt.rollbacks, fc.Rollbacks())
			assert.Equal(t, 1, fc.Finalized())
		})
	}
}

func TestCursorNextRowFailure(t *testing.T) {
	tests := []struct {
		name  string
		owned bool
	}{
		{"owned statement is finalized", true},
		{"borrowed statement is reset", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fc := openFake(t, types.RetryPolicy{MaxRetries: 1})
			fc.On("select x from t", enginetest.Plan{
				Columns: []string{"x"},
				Rows:    [][]any{{int64(1)}, {int64(2)}},
				Errs:    []error{nil, enginetest.Busy, enginetest.Busy},
			})

			s, err := c.CompileStatement("select x from t")
			require.NoError(t, err)
			defer s.Finalize()

			var q *Cursor
			if tt.owned {
				q, err = s.ExecQueryOnce()
			} else {
				q, err = s.ExecQuery()
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owned, q.Owned())

			err = q.NextRow()
			assert.Equal(t, sqlite3.SQLITE_BUSY, types.Code(err))
			assert.True(t, q.Eof())
			assert.ErrorIs(t, q.NextRow(), types.ErrNullStatement)

			if tt.owned {
				assert.Equal(t, 1, fc.Finalized())
				assert.False(t, s.Owned())
			} else {
				assert.Equal(t, 0, fc.Finalized())
				assert.True(t, s.Owned())
			}
		})
	}
}

func TestCursorPolicyOverride(t *testing.T) {
	c, fc := openFake(t, types.RetryPolicy{MaxRetries: 5})
	fc.On("select x from t", enginetest.Plan{
		Columns: []string{"x"},
		Rows:    [][]any{{int64(1)}, {int64(2)}},
		Errs:    append([]error{nil}, repeat(enginetest.Locked, 10)...),
	})

	fc.SetAutocommit(false)

	q, err := c.ExecQuery("select x from t")
	require.NoError(t, err)
	defer q.Finalize()

	q.SetMaxRetryCount(1)
	q.SetRetryTimeUs(0)
	err = q.NextRow()
	assert.Equal(t, sqlite3.SQLITE_LOCKED, types.Code(err))
	assert.Equal(t, 3, fc.Steps("select x from t"))
}
