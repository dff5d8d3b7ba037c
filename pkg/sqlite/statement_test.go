package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/engine/enginetest"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

const selectX = "select x from t"

func scriptSelect(fc *enginetest.Conn) {
	fc.On(selectX, enginetest.Plan{
		Columns: []string{"x"},
		Rows:    [][]any{{int64(1)}, {int64(2)}},
	})
}

func TestStatementFinalizesOnce(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, s *Statement)
	}{
		{
			name: "finalize twice",
			run: func(t *testing.T, s *Statement) {
				require.NoError(t, s.Finalize())
				require.NoError(t, s.Finalize())
			},
		},
		{
			name: "move then finalize both",
			run: func(t *testing.T, s *Statement) {
				moved := s.Move()
				assert.False(t, s.Owned())
				assert.True(t, moved.Owned())
				require.NoError(t, s.Finalize())
				require.NoError(t, moved.Finalize())
			},
		},
		{
			name: "borrowing cursor then owner finalizes",
			run: func(t *testing.T, s *Statement) {
				q, err := s.ExecQuery()
				require.NoError(t, err)
				assert.False(t, q.Owned())
				require.NoError(t, s.Finalize())

				_, err = q.FieldValue(0)
				assert.ErrorIs(t, err, types.ErrNullStatement)
				assert.ErrorIs(t, q.NextRow(), types.ErrNullStatement)
				require.NoError(t, q.Finalize())
			},
		},
		{
			name: "query once moves ownership to the cursor",
			run: func(t *testing.T, s *Statement) {
				q, err := s.ExecQueryOnce()
				require.NoError(t, err)
				assert.True(t, q.Owned())
				assert.False(t, s.Owned())

				_, err = s.ExecDML()
				assert.ErrorIs(t, err, types.ErrNullStatement)
				require.NoError(t, s.Finalize())
				require.NoError(t, q.Finalize())
				require.NoError(t, q.Finalize())
			},
		},
		{
			name: "moved cursor finalizes once",
			run: func(t *testing.T, s *Statement) {
				q, err := s.ExecQueryOnce()
				require.NoError(t, err)
				moved := q.Move()
				assert.False(t, q.Owned())
				assert.True(t, q.Eof())
				require.NoError(t, q.Finalize())
				require.NoError(t, moved.Finalize())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fc := openFake(t, types.RetryPolicy{})
			scriptSelect(fc)

			s, err := c.CompileStatement(selectX)
			require.NoError(t, err)
			tt.run(t, s)

			assert.Equal(t, 1, fc.Prepared())
			assert.Equal(t, 1, fc.Finalized())
			assert.Zero(t, fc.Live())
		})
	}
}

func TestCloseFinalizesLeftovers(t *testing.T) {
	c, fc := openFake(t, types.RetryPolicy{})
	scriptSelect(fc)

	s, err := c.CompileStatement(selectX)
	require.NoError(t, err)
	q, err := c.ExecQuery(selectX)
	require.NoError(t, err)
	assert.Equal(t, 2, fc.Live())

	require.NoError(t, c.Close())
	assert.True(t, fc.Closed())
	assert.Zero(t, fc.Live())
	assert.Equal(t, 2, fc.Finalized())

	assert.ErrorIs(t, s.Reset(), types.ErrNullStatement)
	assert.True(t, q.Eof())
	require.NoError(t, s.Finalize())
	require.NoError(t, q.Finalize())
	assert.Equal(t, 2, fc.Finalized())
}

func TestStatementOnClosedConn(t *testing.T) {
	c := NewConn()
	_, err := c.CompileStatement("select 1")
	assert.ErrorIs(t, err, types.ErrDatabaseNotOpen)
}

func TestStatementExecDML(t *testing.T) {
	c, _ := openTemp(t)
	_, err := c.ExecDML("create table emp(empno integer, empname text, salary real, photo blob, hired text);")
	require.NoError(t, err)

	s, err := c.CompileStatement("insert into emp values(?, ?, ?, ?, ?)")
	require.NoError(t, err)
	defer s.Finalize()

	n, err := s.BindParamCount()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	hired := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Bind(1, i))
		require.NoError(t, s.Bind(2, "name"))
		require.NoError(t, s.Bind(3, 1.5))
		require.NoError(t, s.Bind(4, []byte{byte(i)}))
		require.NoError(t, s.Bind(5, hired))
		changed, err := s.ExecDML()
		require.NoError(t, err)
		assert.Equal(t, 1, changed)
	}
	assert.Equal(t, int64(3), c.LastRowID())

	require.NoError(t, s.ClearBindings())
	require.NoError(t, s.BindInt(1, 99))
	_, err = s.ExecDML()
	require.NoError(t, err)

	q, err := c.ExecQuery("select empname, hired, photo from emp where empno = 99")
	require.NoError(t, err)
	defer q.Finalize()
	isNull, err := q.IsNull(0)
	require.NoError(t, err)
	assert.True(t, isNull, "cleared bindings read as NULL")

	q2, err := c.ExecQuery("select hired from emp where empno = 0")
	require.NoError(t, err)
	defer q2.Finalize()
	v, err := q2.FieldValue(0)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02T03:04:05Z", v)
}

func TestStatementBindErrors(t *testing.T) {
	c, _ := openTemp(t)
	s, err := c.CompileStatement("select ?1, :name")
	require.NoError(t, err)
	defer s.Finalize()

	err = s.BindInt(3, 1)
	require.Error(t, err)
	assert.Equal(t, sqlite3.SQLITE_RANGE, types.Code(err))
	assert.Contains(t, err.Error(), "error binding int param 3")

	err = s.Bind(1, struct{}{})
	assert.Equal(t, sqlite3.SQLITE_MISMATCH, types.Code(err))

	_, err = s.BindParamIndex(":missing")
	assert.Equal(t, sqlite3.SQLITE_RANGE, types.Code(err))
}

func TestStatementBindNamed(t *testing.T) {
	if engine.IsCGO() {
		t.Skip("named parameters are not resolved by the cgo adapter")
	}
	c, _ := openTemp(t)
	s, err := c.CompileStatement("select :a || :b")
	require.NoError(t, err)
	defer s.Finalize()

	require.NoError(t, s.BindNamed(":a", "x"))
	require.NoError(t, s.BindNamed(":b", 7))

	q, err := s.ExecQuery()
	require.NoError(t, err)
	v, err := q.FieldValue(0)
	require.NoError(t, err)
	assert.Equal(t, "x7", v)
}

func TestStatementExecDMLReturningRow(t *testing.T) {
	c, _ := openTemp(t)
	s, err := c.CompileStatement("select 1")
	require.NoError(t, err)
	defer s.Finalize()

	_, err = s.ExecDML()
	assert.ErrorIs(t, err, types.ErrUnexpectedRow)
}

func TestStatementReuseAfterQuery(t *testing.T) {
	c, _ := openTemp(t)
	_, err := c.ExecDML("create table t(x integer); insert into t values(1); insert into t values(2);")
	require.NoError(t, err)

	s, err := c.CompileStatement("select x from t where x >= ? order by x")
	require.NoError(t, err)
	defer s.Finalize()

	for _, tc := range []struct {
		min  int
		want []int
	}{
		{1, []int{1, 2}},
		{2, []int{2}},
		{3, nil},
	} {
		require.NoError(t, s.Reset())
		require.NoError(t, s.Bind(1, tc.min))
		q, err := s.ExecQuery()
		require.NoError(t, err)

		var got []int
		for !q.Eof() {
			v, err := q.Int(0, -1)
			require.NoError(t, err)
			got = append(got, v)
			require.NoError(t, q.NextRow())
		}
		assert.Equal(t, tc.want, got)
		require.NoError(t, q.Finalize())
		assert.True(t, s.Owned(), "a borrowing cursor leaves the statement alive")
	}
}
