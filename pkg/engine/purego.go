package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// pureGo adapts zombiezen.com/go/sqlite. It is always compiled in.
type pureGo struct{}

func init() {
	register(pureGo{})
}

func (pureGo) Name() string { return types.EnginePureGo }

func (pureGo) Version() string { return sqlite3.SQLITE_VERSION }

func (pureGo) Open(path string) (Conn, error) {
	c, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, zerr(err)
	}
	return &zconn{c: c}, nil
}

// zerr converts a zombiezen error into a *types.Error.
func zerr(err error) error {
	if err == nil {
		return nil
	}
	var e *types.Error
	if errors.As(err, &e) {
		return err
	}
	code := int(sqlite.ErrCode(err))
	if code == sqlite3.SQLITE_OK {
		code = sqlite3.SQLITE_ERROR
	}
	return types.NewError(code, strings.TrimPrefix(err.Error(), "sqlite: "))
}

type zconn struct {
	c *sqlite.Conn
}

func (z *zconn) Prepare(query string) (Stmt, string, error) {
	s, trailing, err := z.c.PrepareTransient(query)
	if err != nil {
		return nil, "", zerr(err)
	}
	tail := query[len(query)-trailing:]
	if s == nil {
		return nil, tail, nil
	}
	return &zstmt{conn: z, s: s}, tail, nil
}

func (z *zconn) Changes() int { return z.c.Changes() }

func (z *zconn) LastInsertRowID() int64 { return z.c.LastInsertRowID() }

func (z *zconn) Autocommit() bool { return z.c.AutocommitEnabled() }

func (z *zconn) SetBusyTimeout(d time.Duration) error {
	return z.exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
}

func (z *zconn) SetInterrupt(done <-chan struct{}) {
	z.c.SetInterrupt(done)
}

func (z *zconn) BackupTo(dst Conn) (Backup, error) {
	d, ok := dst.(*zconn)
	if !ok {
		return nil, types.NewError(sqlite3.SQLITE_MISUSE, "backup target was opened by a different engine")
	}
	b, err := sqlite.NewBackup(d.c, "main", z.c, "main")
	if err != nil {
		return nil, zerr(err)
	}
	return &zbackup{b: b}, nil
}

func (z *zconn) Close() error {
	return zerr(z.c.Close())
}

// exec runs a single statement that returns no rows of interest.
func (z *zconn) exec(query string) error {
	s, _, err := z.c.PrepareTransient(query)
	if err != nil {
		return zerr(err)
	}
	defer s.Finalize()
	for {
		row, err := s.Step()
		if err != nil {
			return zerr(err)
		}
		if !row {
			return nil
		}
	}
}

// declType looks up the declared type of column name in table.
func (z *zconn) declType(schema, table, name string) string {
	s, _, err := z.c.PrepareTransient("SELECT type FROM pragma_table_info(?1, ?2) WHERE name = ?3")
	if err != nil {
		return ""
	}
	defer s.Finalize()
	s.BindText(1, table)
	s.BindText(2, schema)
	s.BindText(3, name)
	if row, err := s.Step(); err != nil || !row {
		return ""
	}
	return s.ColumnText(0)
}

type zstmt struct {
	conn *zconn
	s    *sqlite.Stmt
}

func (z *zstmt) Step() (bool, error) {
	row, err := z.s.Step()
	return row, zerr(err)
}

func (z *zstmt) Reset() error         { return zerr(z.s.Reset()) }
func (z *zstmt) ClearBindings() error { return zerr(z.s.ClearBindings()) }
func (z *zstmt) Finalize() error      { return zerr(z.s.Finalize()) }

func (z *zstmt) BindParamCount() int { return z.s.BindParamCount() }

func (z *zstmt) BindParamIndex(name string) int {
	for i := 1; i <= z.s.BindParamCount(); i++ {
		if z.s.BindParamName(i) == name {
			return i
		}
	}
	return 0
}

func (z *zstmt) BindText(param int, v string) error {
	if err := checkParam("string", param, z.s.BindParamCount()); err != nil {
		return err
	}
	z.s.BindText(param, v)
	return nil
}

func (z *zstmt) BindInt64(param int, v int64) error {
	if err := checkParam("int64", param, z.s.BindParamCount()); err != nil {
		return err
	}
	z.s.BindInt64(param, v)
	return nil
}

func (z *zstmt) BindFloat(param int, v float64) error {
	if err := checkParam("double", param, z.s.BindParamCount()); err != nil {
		return err
	}
	z.s.BindFloat(param, v)
	return nil
}

func (z *zstmt) BindBytes(param int, v []byte) error {
	if err := checkParam("blob", param, z.s.BindParamCount()); err != nil {
		return err
	}
	z.s.BindBytes(param, v)
	return nil
}

func (z *zstmt) BindNull(param int) error {
	if err := checkParam("NULL", param, z.s.BindParamCount()); err != nil {
		return err
	}
	z.s.BindNull(param)
	return nil
}

func (z *zstmt) ColumnCount() int              { return z.s.ColumnCount() }
func (z *zstmt) ColumnName(col int) string     { return z.s.ColumnName(col) }
func (z *zstmt) ColumnType(col int) ColumnType { return ColumnType(z.s.ColumnType(col)) }
func (z *zstmt) ColumnText(col int) string     { return z.s.ColumnText(col) }
func (z *zstmt) ColumnInt64(col int) int64     { return z.s.ColumnInt64(col) }
func (z *zstmt) ColumnFloat(col int) float64   { return z.s.ColumnFloat(col) }

func (z *zstmt) ColumnDeclType(col int) string {
	table := z.s.ColumnTableName(col)
	if table == "" {
		return ""
	}
	return z.conn.declType(z.s.ColumnDatabaseName(col), table, z.s.ColumnName(col))
}

func (z *zstmt) ColumnBytes(col int) []byte {
	buf := make([]byte, z.s.ColumnLen(col))
	z.s.ColumnBytes(col, buf)
	return buf
}

type zbackup struct {
	b *sqlite.Backup
}

func (z *zbackup) Step(pages int) (bool, error) {
	more, err := z.b.Step(pages)
	return more, zerr(err)
}

func (z *zbackup) Remaining() int { return z.b.Remaining() }
func (z *zbackup) PageCount() int { return z.b.PageCount() }
func (z *zbackup) Close() error   { return zerr(z.b.Close()) }
