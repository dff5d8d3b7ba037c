//go:build cgo_sqlite

package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	mattn "github.com/mattn/go-sqlite3"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// cgoEngine adapts github.com/mattn/go-sqlite3 at the database/sql/driver level.
// Named parameters are not resolved by this adapter: BindParamIndex always
// returns 0.
type cgoEngine struct{}

func init() {
	register(cgoEngine{})
}

func (cgoEngine) Name() string { return types.EngineCGO }

func (cgoEngine) Version() string {
	v, _, _ := mattn.Version()
	return v
}

func (cgoEngine) Open(path string) (Conn, error) {
	dc, err := (&mattn.SQLiteDriver{}).Open(path)
	if err != nil {
		return nil, merr(err)
	}
	return &mconn{c: dc.(*mattn.SQLiteConn)}, nil
}

// merr converts a mattn error into a *types.Error.
func merr(err error) error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	var e mattn.Error
	if errors.As(err, &e) {
		code := int(e.ExtendedCode)
		if code == 0 {
			code = int(e.Code)
		}
		return types.NewError(code, e.Error())
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(sqlite3.SQLITE_INTERRUPT, "interrupted")
	}
	return types.NewError(sqlite3.SQLITE_ERROR, err.Error())
}

type mconn struct {
	c    *mattn.SQLiteConn
	done <-chan struct{}
}

func (m *mconn) Prepare(query string) (Stmt, string, error) {
	head, tail := splitStatement(query)
	if strings.TrimSpace(head) == "" || strings.TrimSpace(head) == ";" {
		return nil, tail, nil
	}
	if isClosed(m.done) {
		return nil, "", types.NewError(sqlite3.SQLITE_INTERRUPT, "interrupted")
	}
	ds, err := m.c.Prepare(head)
	if err != nil {
		return nil, "", merr(err)
	}
	s := ds.(*mattn.SQLiteStmt)
	return &mstmt{conn: m, s: s, params: s.NumInput()}, tail, nil
}

func (m *mconn) Changes() int { return int(m.queryInt("SELECT changes()")) }

func (m *mconn) LastInsertRowID() int64 { return m.queryInt("SELECT last_insert_rowid()") }

func (m *mconn) Autocommit() bool { return m.c.AutoCommit() }

func (m *mconn) SetBusyTimeout(d time.Duration) error {
	_, err := m.c.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()), nil)
	return merr(err)
}

func (m *mconn) SetInterrupt(done <-chan struct{}) { m.done = done }

func (m *mconn) BackupTo(dst Conn) (Backup, error) {
	d, ok := dst.(*mconn)
	if !ok {
		return nil, types.NewError(sqlite3.SQLITE_MISUSE, "backup target was opened by a different engine")
	}
	b, err := d.c.Backup("main", m.c, "main")
	if err != nil {
		return nil, merr(err)
	}
	return &mbackup{b: b}, nil
}

func (m *mconn) Close() error { return merr(m.c.Close()) }

func (m *mconn) queryInt(query string) int64 {
	rows, err := m.c.Query(query, nil)
	if err != nil {
		return 0
	}
	defer rows.Close()
	dest := make([]driver.Value, 1)
	if rows.Next(dest) != nil {
		return 0
	}
	n, _ := dest[0].(int64)
	return n
}

// doneContext returns a context cancelled when done is closed.
func doneContext(done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if done != nil {
		go func() {
			select {
			case <-done:
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	return ctx, cancel
}

func isClosed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

type mstmt struct {
	conn   *mconn
	s      *mattn.SQLiteStmt
	params int
	args   []driver.Value

	rows   *mattn.SQLiteRows
	cancel context.CancelFunc
	cols   []string
	row    []driver.Value
	done   bool
}

func (m *mstmt) Step() (bool, error) {
	if m.done {
		return false, nil
	}
	if m.rows == nil {
		ctx, cancel := doneContext(m.conn.done)
		rows, err := m.s.QueryContext(ctx, m.namedArgs())
		if err != nil {
			cancel()
			return false, merr(err)
		}
		m.rows = rows.(*mattn.SQLiteRows)
		m.cancel = cancel
		m.cols = m.rows.Columns()
		m.row = make([]driver.Value, len(m.cols))
	}
	switch err := m.rows.Next(m.row); {
	case err == io.EOF:
		m.done = true
		return false, nil
	case err != nil:
		_ = m.Reset()
		return false, merr(err)
	}
	return true, nil
}

func (m *mstmt) namedArgs() []driver.NamedValue {
	args := make([]driver.NamedValue, m.params)
	for i := range args {
		args[i].Ordinal = i + 1
		if i < len(m.args) {
			args[i].Value = m.args[i]
		}
	}
	return args
}

func (m *mstmt) Reset() error {
	var err error
	if m.rows != nil {
		err = m.rows.Close()
		m.cancel()
	}
	m.rows, m.cancel, m.row, m.done = nil, nil, nil, false
	return merr(err)
}

func (m *mstmt) ClearBindings() error {
	m.args = nil
	return nil
}

func (m *mstmt) Finalize() error {
	rerr := m.Reset()
	if err := m.s.Close(); err != nil {
		return merr(err)
	}
	return rerr
}

func (m *mstmt) BindParamCount() int { return m.params }

func (m *mstmt) BindParamIndex(string) int { return 0 }

func (m *mstmt) bind(kind string, param int, v driver.Value) error {
	if err := checkParam(kind, param, m.params); err != nil {
		return err
	}
	if len(m.args) < m.params {
		m.args = append(m.args, make([]driver.Value, m.params-len(m.args))...)
	}
	m.args[param-1] = v
	return nil
}

func (m *mstmt) BindText(param int, v string) error   { return m.bind("string", param, v) }
func (m *mstmt) BindInt64(param int, v int64) error   { return m.bind("int64", param, v) }
func (m *mstmt) BindFloat(param int, v float64) error { return m.bind("double", param, v) }
func (m *mstmt) BindNull(param int) error             { return m.bind("NULL", param, nil) }

func (m *mstmt) BindBytes(param int, v []byte) error {
	if v == nil {
		v = []byte{}
	}
	return m.bind("blob", param, v)
}

func (m *mstmt) ColumnCount() int { return len(m.cols) }

func (m *mstmt) ColumnName(col int) string {
	if col < 0 || col >= len(m.cols) {
		return ""
	}
	return m.cols[col]
}

func (m *mstmt) ColumnDeclType(col int) string {
	if m.rows == nil {
		return ""
	}
	decl := m.rows.DeclTypes()
	if col < 0 || col >= len(decl) {
		return ""
	}
	return decl[col]
}

func (m *mstmt) value(col int) driver.Value {
	if col < 0 || col >= len(m.row) {
		return nil
	}
	return m.row[col]
}

func (m *mstmt) ColumnType(col int) ColumnType {
	switch m.value(col).(type) {
	case int64, bool:
		return TypeInteger
	case float64:
		return TypeFloat
	case string, time.Time:
		return TypeText
	case []byte:
		return TypeBlob
	}
	return TypeNull
}

func (m *mstmt) ColumnText(col int) string {
	switch v := m.value(col).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatFloat(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format(mattn.SQLiteTimestampFormats[0])
	}
	return ""
}

func (m *mstmt) ColumnInt64(col int) int64 {
	switch v := m.value(col).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(m.ColumnText(col)), 10, 64)
	return n
}

func (m *mstmt) ColumnFloat(col int) float64 {
	switch v := m.value(col).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	f, _ := strconv.ParseFloat(strings.TrimSpace(m.ColumnText(col)), 64)
	return f
}

func (m *mstmt) ColumnBytes(col int) []byte {
	if v, ok := m.value(col).([]byte); ok {
		return append([]byte(nil), v...)
	}
	return []byte(m.ColumnText(col))
}

// formatFloat renders v the way the engine renders REAL values as text.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', 15, 64)
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}

type mbackup struct {
	b *mattn.SQLiteBackup
}

// Step reports contention as SQLITE_BUSY when asked to copy every page, since the
// driver folds BUSY and LOCKED into an incomplete step.
func (m *mbackup) Step(pages int) (bool, error) {
	done, err := m.b.Step(pages)
	if err != nil {
		return false, merr(err)
	}
	if !done && pages < 0 {
		return false, types.NewError(sqlite3.SQLITE_BUSY, "backup step: database is locked")
	}
	return !done, nil
}

func (m *mbackup) Remaining() int { return m.b.Remaining() }
func (m *mbackup) PageCount() int { return m.b.PageCount() }
func (m *mbackup) Close() error   { return merr(m.b.Finish()) }
