// Package enginetest provides a scriptable in-memory engine for tests that need to
// provoke statuses a real database cannot produce on demand, such as a full disk or
// a lock that never clears.
//
// Statements are matched by their text with surrounding whitespace and the
// terminating semicolon removed. A statement without a Plan completes without
// rows. BEGIN clears the autocommit flag; COMMIT, END and ROLLBACK set it again.
package enginetest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// Busy, Locked and Full are ready-made engine errors for plans.
var (
	Busy   = types.NewError(sqlite3.SQLITE_BUSY, "database is locked")
	Locked = types.NewError(sqlite3.SQLITE_LOCKED, "database table is locked")
	Full   = types.NewError(sqlite3.SQLITE_FULL, "database or disk is full")
)

// Plan scripts the behaviour of one statement.
type Plan struct {
	Columns   []string
	DeclTypes []string
	// Rows holds nil, int64, float64, string or []byte values.
	Rows [][]any
	// Errs are returned by successive Step calls, one each. A nil entry lets that
	// Step proceed normally. A failed Step resets the statement, as the real
	// engines do, so the next one starts again from the first row.
	Errs []error
	// Changes is reported by Conn.Changes once the statement completes.
	Changes int
	// PrepareErr fails compilation.
	PrepareErr error
	// Block makes Step wait for the interrupt channel before failing with
	// SQLITE_INTERRUPT.
	Block bool
}

// Opener hands out fake connections keyed by path. Opening the same path twice
// returns the same Conn.
type Opener struct {
	mu      sync.Mutex
	conns   map[string]*Conn
	OpenErr error
}

// NewOpener returns an empty Opener.
func NewOpener() *Opener {
	return &Opener{conns: make(map[string]*Conn)}
}

func (o *Opener) Name() string    { return "fake" }
func (o *Opener) Version() string { return "0.0.0-fake" }

// Conn returns the fake for path, creating it if needed, so tests can script it
// before the code under test opens it.
func (o *Opener) Conn(path string) *Conn {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.conns[path]
	if !ok {
		c = NewConn()
		o.conns[path] = c
	}
	return c
}

func (o *Opener) Open(path string) (engine.Conn, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	c := o.Conn(path)
	c.mu.Lock()
	c.closed = false
	c.opens++
	c.mu.Unlock()
	return c, nil
}

// Conn is a fake engine connection. Its accessors are safe for concurrent use.
type Conn struct {
	mu         sync.Mutex
	plans      map[string]*Plan
	autocommit bool
	log        []string
	args       map[string][]any
	prepared   int
	finalized  int
	live       int
	opens      int
	closed     bool
	interrupt  <-chan struct{}
	busy       time.Duration
	changes    int
	lastID     int64

	backupErrs  []error
	backupSteps int
	pages       int
	restored    *Conn
}

// NewConn returns a fake connection in autocommit mode.
func NewConn() *Conn {
	return &Conn{
		plans:      make(map[string]*Plan),
		args:       make(map[string][]any),
		autocommit: true,
		pages:      1,
	}
}

func key(query string) string {
	return strings.TrimSuffix(strings.TrimSpace(query), ";")
}

// On scripts the statement with the given text.
func (c *Conn) On(query string, p Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[key(query)] = &p
}

// SetAutocommit overrides the transaction state.
func (c *Conn) SetAutocommit(on bool) {
	c.mu.Lock()
	c.autocommit = on
	c.mu.Unlock()
}

// SetBackupErrors scripts the results of successive backup Step calls.
func (c *Conn) SetBackupErrors(errs ...error) {
	c.mu.Lock()
	c.backupErrs = errs
	c.mu.Unlock()
}

// SetLastInsertRowID sets the value LastInsertRowID reports.
func (c *Conn) SetLastInsertRowID(id int64) {
	c.mu.Lock()
	c.lastID = id
	c.mu.Unlock()
}

// Steps returns how many times a statement with the given text was stepped.
func (c *Conn) Steps(query string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, n := key(query), 0
	for _, q := range c.log {
		if q == k {
			n++
		}
	}
	return n
}

// Rollbacks returns how many ROLLBACK statements were stepped.
func (c *Conn) Rollbacks() int {
	return c.Steps("ROLLBACK")
}

// Log returns the text of every stepped statement in order.
func (c *Conn) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// Args returns the parameters bound the last time the statement was stepped.
func (c *Conn) Args(query string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.args[key(query)]
}

// Prepared returns how many statements were compiled.
func (c *Conn) Prepared() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prepared
}

// Finalized returns how many statements were finalized.
func (c *Conn) Finalized() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}

// Live returns how many compiled statements have not been finalized.
func (c *Conn) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Opens returns how many times the connection was opened.
func (c *Conn) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// BusyTimeout returns the last busy timeout set.
func (c *Conn) BusyTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// BackupSteps returns how many backup Step calls were made with this connection
// as the source.
func (c *Conn) BackupSteps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backupSteps
}

// RestoredFrom returns the connection most recently backed up into this one.
func (c *Conn) RestoredFrom() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restored
}

func (c *Conn) Prepare(query string) (engine.Stmt, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, "", types.NewError(sqlite3.SQLITE_MISUSE, "connection is closed")
	}
	head, tail, _ := strings.Cut(query, ";")
	k := key(head)
	if k == "" {
		return nil, tail, nil
	}
	p := c.plans[k]
	if p != nil && p.PrepareErr != nil {
		return nil, "", p.PrepareErr
	}
	c.prepared++
	c.live++
	return &Stmt{c: c, query: k, plan: p, params: make([]any, strings.Count(k, "?"))}, tail, nil
}

func (c *Conn) Changes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes
}

func (c *Conn) LastInsertRowID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

func (c *Conn) Autocommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autocommit
}

func (c *Conn) SetBusyTimeout(d time.Duration) error {
	c.mu.Lock()
	c.busy = d
	c.mu.Unlock()
	return nil
}

func (c *Conn) SetInterrupt(done <-chan struct{}) {
	c.mu.Lock()
	c.interrupt = done
	c.mu.Unlock()
}

func (c *Conn) BackupTo(dst engine.Conn) (engine.Backup, error) {
	d, ok := dst.(*Conn)
	if !ok {
		return nil, types.NewError(sqlite3.SQLITE_MISUSE, "backup target was opened by a different engine")
	}
	return &Backup{src: c, dst: d}, nil
}

// Close fails with SQLITE_BUSY while statements are live, as the engine does.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live > 0 {
		return types.NewError(sqlite3.SQLITE_BUSY, "unable to close due to unfinalized statements")
	}
	c.closed = true
	return nil
}

func (c *Conn) interrupted() bool {
	if c.interrupt == nil {
		return false
	}
	select {
	case <-c.interrupt:
		return true
	default:
		return false
	}
}

var errInterrupt = types.NewError(sqlite3.SQLITE_INTERRUPT, "interrupted")

// Stmt is a compiled fake statement.
type Stmt struct {
	c         *Conn
	query     string
	plan      *Plan
	params    []any
	next      int
	cur       []any
	done      bool
	finalized bool
}

func (s *Stmt) Step() (bool, error) {
	c := s.c
	c.mu.Lock()
	if s.finalized {
		c.mu.Unlock()
		return false, types.NewError(sqlite3.SQLITE_MISUSE, "statement is finalized")
	}
	c.log = append(c.log, s.query)
	c.args[s.query] = append([]any(nil), s.params...)
	if c.interrupted() {
		c.mu.Unlock()
		return false, errInterrupt
	}
	if p := s.plan; p != nil {
		if p.Block {
			done := c.interrupt
			c.mu.Unlock()
			if done == nil {
				return false, types.NewError(sqlite3.SQLITE_MISUSE, "blocking plan needs an interrupt channel")
			}
			<-done
			return false, errInterrupt
		}
		if len(p.Errs) > 0 {
			err := p.Errs[0]
			p.Errs = p.Errs[1:]
			if err != nil {
				s.next, s.cur, s.done = 0, nil, false
				c.mu.Unlock()
				return false, err
			}
		}
	}
	defer c.mu.Unlock()

	if s.done {
		return false, nil
	}
	if s.plan != nil && s.next < len(s.plan.Rows) {
		s.cur = s.plan.Rows[s.next]
		s.next++
		return true, nil
	}
	s.done = true
	s.cur = nil
	s.complete()
	return false, nil
}

// complete applies the side effects of a finished statement. The caller holds c.mu.
func (s *Stmt) complete() {
	c := s.c
	if s.plan != nil {
		c.changes = s.plan.Changes
	}
	verb, _, _ := strings.Cut(strings.ToUpper(s.query), " ")
	switch verb {
	case "BEGIN":
		c.autocommit = false
	case "COMMIT", "END", "ROLLBACK":
		c.autocommit = true
	}
}

func (s *Stmt) Reset() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.next, s.cur, s.done = 0, nil, false
	return nil
}

func (s *Stmt) ClearBindings() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	clear(s.params)
	return nil
}

func (s *Stmt) Finalize() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.finalized {
		return types.NewError(sqlite3.SQLITE_MISUSE, "statement finalized twice")
	}
	s.finalized = true
	s.c.finalized++
	s.c.live--
	return nil
}

func (s *Stmt) BindParamCount() int { return len(s.params) }

func (s *Stmt) BindParamIndex(string) int { return 0 }

func (s *Stmt) bind(kind string, param int, v any) error {
	if param < 1 || param > len(s.params) {
		return types.NewError(sqlite3.SQLITE_RANGE, fmt.Sprintf("error binding %s param %d: column index out of range", kind, param))
	}
	s.c.mu.Lock()
	s.params[param-1] = v
	s.c.mu.Unlock()
	return nil
}

func (s *Stmt) BindText(param int, v string) error   { return s.bind("string", param, v) }
func (s *Stmt) BindInt64(param int, v int64) error   { return s.bind("int64", param, v) }
func (s *Stmt) BindFloat(param int, v float64) error { return s.bind("double", param, v) }
func (s *Stmt) BindBytes(param int, v []byte) error  { return s.bind("blob", param, v) }
func (s *Stmt) BindNull(param int) error             { return s.bind("NULL", param, nil) }

func (s *Stmt) ColumnCount() int {
	if s.plan == nil {
		return 0
	}
	return len(s.plan.Columns)
}

func (s *Stmt) ColumnName(col int) string {
	if col < 0 || col >= s.ColumnCount() {
		return ""
	}
	return s.plan.Columns[col]
}

func (s *Stmt) ColumnDeclType(col int) string {
	if s.plan == nil || col < 0 || col >= len(s.plan.DeclTypes) {
		return ""
	}
	return s.plan.DeclTypes[col]
}

func (s *Stmt) value(col int) any {
	if col < 0 || col >= len(s.cur) {
		return nil
	}
	return s.cur[col]
}

func (s *Stmt) ColumnType(col int) engine.ColumnType {
	switch s.value(col).(type) {
	case int64:
		return engine.TypeInteger
	case float64:
		return engine.TypeFloat
	case string:
		return engine.TypeText
	case []byte:
		return engine.TypeBlob
	}
	return engine.TypeNull
}

func (s *Stmt) ColumnText(col int) string {
	switch v := s.value(col).(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (s *Stmt) ColumnInt64(col int) int64 {
	switch v := s.value(col).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	n, _ := strconv.ParseInt(s.ColumnText(col), 10, 64)
	return n
}

func (s *Stmt) ColumnFloat(col int) float64 {
	switch v := s.value(col).(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	f, _ := strconv.ParseFloat(s.ColumnText(col), 64)
	return f
}

func (s *Stmt) ColumnBytes(col int) []byte {
	if v, ok := s.value(col).([]byte); ok {
		return append([]byte(nil), v...)
	}
	return []byte(s.ColumnText(col))
}

// Backup is a fake page copy. Each Step consumes one scripted error from the
// source; once they run out the copy completes in one step.
type Backup struct {
	src, dst *Conn
	done     bool
}

func (b *Backup) Step(int) (bool, error) {
	b.src.mu.Lock()
	b.src.backupSteps++
	if len(b.src.backupErrs) > 0 {
		err := b.src.backupErrs[0]
		b.src.backupErrs = b.src.backupErrs[1:]
		if err != nil {
			b.src.mu.Unlock()
			return true, err
		}
	}
	b.src.mu.Unlock()

	b.dst.mu.Lock()
	b.dst.restored = b.src
	b.dst.mu.Unlock()
	b.done = true
	return false, nil
}

func (b *Backup) Remaining() int {
	if b.done {
		return 0
	}
	return b.PageCount()
}

func (b *Backup) PageCount() int {
	b.src.mu.Lock()
	defer b.src.mu.Unlock()
	return b.src.pages
}

func (b *Backup) Close() error { return nil }
