// Package sqlite wraps an embedded SQLite engine with bounded retries on lock
// contention, rollback of a failed transaction, single-owner statement handles,
// result snapshots and online backup.
//
// A Conn and everything derived from it belong to one goroutine. The exception is
// Conn.Interrupt, which may be called from anywhere.
package sqlite

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// Conn is a database connection. The zero value is not usable; create one with
// NewConn or NewConnFromConfig and then call Open.
type Conn struct {
	engine      engine.Opener
	db          engine.Conn
	path        string
	busyTimeout time.Duration
	policy      types.RetryPolicy
	logger      log.Logger
	metrics     *Metrics
	handles     map[*handle]struct{}

	mu   sync.Mutex // guards done
	done chan struct{}
}

// Option configures a Conn.
type Option func(*Conn)

// WithEngine selects the engine adapter. The default is engine.Default().
func WithEngine(o engine.Opener) Option {
	return func(c *Conn) { c.engine = o }
}

// WithLogger sets the logger used for contention, rollback and backup messages.
func WithLogger(l log.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithMetrics sets the collectors the connection reports to.
func WithMetrics(m *Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithRetryPolicy sets the contention retry policy.
func WithRetryPolicy(p types.RetryPolicy) Option {
	return func(c *Conn) { c.policy = p }
}

// WithBusyTimeout sets how long the engine itself waits on a lock before reporting
// SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Conn) { c.busyTimeout = d }
}

// NewConn returns an unopened connection.
func NewConn(opts ...Option) *Conn {
	c := &Conn{
		busyTimeout: types.DefaultBusyTimeout,
		policy:      types.DefaultRetryPolicy(),
		handles:     make(map[*handle]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = engine.Default()
	}
	if c.logger == nil {
		c.logger = log.NewNopLogger()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// NewConnFromConfig returns an unopened connection configured from cfg. Options are
// applied after the configuration and take precedence.
func NewConnFromConfig(cfg types.Config, opts ...Option) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := engine.Lookup(cfg.Engine)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithEngine(o),
		WithBusyTimeout(cfg.BusyTimeout()),
		WithRetryPolicy(cfg.RetryPolicy()),
	}
	return NewConn(append(base, opts...)...), nil
}

// Open opens path for reading and writing, creating it if needed, and applies the
// busy timeout. An already open database is closed first.
func (c *Conn) Open(path string) error {
	if c.db != nil {
		if err := c.Close(); err != nil {
			return err
		}
	}
	db, err := c.engine.Open(path)
	if err != nil {
		return err
	}
	if err := db.SetBusyTimeout(c.busyTimeout); err != nil {
		db.Close()
		return err
	}
	c.db = db
	c.path = path
	level.Debug(c.logger).Log("msg", "opened database", "path", path, "engine", c.engine.Name())
	return nil
}

// Close finalizes every statement still owned by a Statement or Cursor of this
// connection, discarding their errors, and closes the database. Close is idempotent
// and safe on a connection that was never opened.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}
	for h := range c.handles {
		_ = h.finalize()
	}
	c.mu.Lock()
	c.done = nil
	c.mu.Unlock()
	c.db.SetInterrupt(nil)

	err := c.db.Close()
	c.db = nil
	level.Debug(c.logger).Log("msg", "closed database", "path", c.path)
	return err
}

// Path returns the path passed to the last successful Open.
func (c *Conn) Path() string { return c.path }

// IsOpen reports whether the connection holds an open database.
func (c *Conn) IsOpen() bool { return c.db != nil }

// SQLiteVersion returns the version of the engine library.
func (c *Conn) SQLiteVersion() string { return c.engine.Version() }

// Version returns the version of the default engine library.
func Version() string { return engine.Default().Version() }

// LastRowID returns the rowid of the most recent successful INSERT.
func (c *Conn) LastRowID() int64 {
	if c.db == nil {
		return 0
	}
	return c.db.LastInsertRowID()
}

// Changes returns the rows modified by the most recent statement.
func (c *Conn) Changes() int {
	if c.db == nil {
		return 0
	}
	return c.db.Changes()
}

// SetBusyTimeout changes the engine busy timeout, applying it at once if the
// database is open.
func (c *Conn) SetBusyTimeout(ms int) error {
	c.busyTimeout = time.Duration(ms) * time.Millisecond
	if c.db == nil {
		return nil
	}
	return c.db.SetBusyTimeout(c.busyTimeout)
}

// SetMaxRetryCount sets how many times a contended call is retried. Cursors and
// statements created afterwards inherit it.
func (c *Conn) SetMaxRetryCount(n int) { c.policy.MaxRetries = n }

// SetRetryTimeUs sets the pause between retries in microseconds.
func (c *Conn) SetRetryTimeUs(us int) { c.policy.Delay = time.Duration(us) * time.Microsecond }

// RetryPolicy returns the current retry policy.
func (c *Conn) RetryPolicy() types.RetryPolicy { return c.policy }

// Interrupt aborts the engine call in progress, which then fails with
// SQLITE_INTERRUPT. It is safe to call from any goroutine and does not affect
// operations started afterwards.
func (c *Conn) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

// arm gives the engine a fresh interrupt channel unless one is already pending.
func (c *Conn) arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil && c.db != nil {
		c.done = make(chan struct{})
		c.db.SetInterrupt(c.done)
	}
}

// begin prepares an operation bound to ctx. The returned func must be called when
// the operation ends.
func (c *Conn) begin(ctx context.Context) (func(), error) {
	if c.db == nil {
		return nil, types.ErrDatabaseNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.arm()
	stop := context.AfterFunc(ctx, c.Interrupt)
	return func() { stop() }, nil
}

// ExecDML runs every statement of script and returns the rows changed by the last
// one.
func (c *Conn) ExecDML(script string) (int, error) {
	return c.ExecDMLContext(context.Background(), script)
}

// ExecDMLContext is ExecDML with cancellation. Cancelling ctx interrupts the engine
// and abandons any retry pause.
func (c *Conn) ExecDMLContext(ctx context.Context, script string) (int, error) {
	end, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer end()

	err = c.execScript(ctx, "exec_dml", script, func(r *retrier, s engine.Stmt) error {
		for {
			row, err := r.step(ctx, s)
			if err != nil || !row {
				return err
			}
		}
	}, nil)
	if err != nil {
		return 0, err
	}
	return c.db.Changes(), nil
}

// execScript compiles and runs the statements of script one after another, calling
// run for each and finalizing it afterwards. All statements share one retrier.
//
// When a BUSY retry rolls back a transaction that the script itself opened, the
// script runs again from the statement that opened it, so the transaction is never
// split into autocommitted pieces. checkpoint, if set, is called once that
// transaction is open and returns a func that drops what run gathered since.
func (c *Conn) execScript(ctx context.Context, op, script string, run func(*retrier, engine.Stmt) error, checkpoint func() func()) error {
	txStart, rewind := -1, func() {}
	r := &retrier{conn: c, op: op, policy: c.policy}
	r.restart = func() bool { return txStart >= 0 }

	rest := script
	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			return nil
		}
		at := len(script) - len(rest)
		s, tail, err := c.db.Prepare(rest)
		if err != nil {
			return c.failed(op, err)
		}
		if s == nil {
			if len(tail) >= len(rest) {
				return nil
			}
			rest = tail
			continue
		}

		auto := c.db.Autocommit()
		err = run(r, s)
		ferr := s.Finalize()
		var re *restartError
		if errors.As(err, &re) {
			level.Info(c.logger).Log("msg", "transaction rolled back, running it again", "op", op, "err", re.err)
			rewind()
			rest = script[txStart:]
			continue
		}
		if err != nil {
			return err
		}
		if ferr != nil {
			return c.failed(op, ferr)
		}

		switch now := c.db.Autocommit(); {
		case auto && !now:
			txStart = at
			rewind = func() {}
			if checkpoint != nil {
				rewind = checkpoint()
			}
		case !auto && now:
			txStart = -1
		}
		if txStart < 0 {
			r.tries = 0
		}
		rest = tail
	}
}

// compile prepares the first statement of query.
func (c *Conn) compile(op, query string) (engine.Stmt, error) {
	s, _, err := c.db.Prepare(query)
	if err != nil {
		return nil, c.failed(op, err)
	}
	if s == nil {
		return nil, types.ErrNullStatement
	}
	return s, nil
}

// track hands a compiled statement to a new handle owned by this connection.
func (c *Conn) track(s engine.Stmt) *handle {
	h := &handle{conn: c, stmt: s}
	c.handles[h] = struct{}{}
	return h
}

// ExecQuery compiles the first statement of query and steps it once. The returned
// cursor owns the statement and is positioned on the first row, or at the end when
// there are none.
func (c *Conn) ExecQuery(query string) (*Cursor, error) {
	return c.ExecQueryContext(context.Background(), query)
}

// ExecQueryContext is ExecQuery with cancellation of the first step.
func (c *Conn) ExecQueryContext(ctx context.Context, query string) (*Cursor, error) {
	end, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	s, err := c.compile("exec_query", query)
	if err != nil {
		return nil, err
	}
	row, err := c.step(ctx, "exec_query", s, c.policy)
	if err != nil {
		_ = s.Finalize()
		return nil, err
	}
	return newCursor(c, c.track(s), true, !row, c.policy), nil
}

// ExecScalar returns the first column of the first row of query as an integer.
// Returns ErrInvalidScalar if the query yields no row or no column.
func (c *Conn) ExecScalar(query string) (int, error) {
	return c.ExecScalarContext(context.Background(), query)
}

// ExecScalarContext is ExecScalar with cancellation.
func (c *Conn) ExecScalarContext(ctx context.Context, query string) (int, error) {
	cur, err := c.ExecQueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer cur.Finalize()

	if cur.Eof() || cur.NumFields() < 1 {
		return 0, types.ErrInvalidScalar
	}
	v, err := cur.FieldValue(0)
	if err != nil {
		return 0, err
	}
	return int(atoi(v)), nil
}

// GetTable runs every statement of script and returns all their rows as a
// snapshot. Either the whole script succeeds or no table is returned. Column names
// are taken from the first row, so a result without rows has no fields.
func (c *Conn) GetTable(script string) (*Table, error) {
	return c.GetTableContext(context.Background(), script)
}

// GetTableContext is GetTable with cancellation.
func (c *Conn) GetTableContext(ctx context.Context, script string) (*Table, error) {
	end, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	var b tableBuilder
	err = c.execScript(ctx, "get_table", script, func(r *retrier, s engine.Stmt) error {
		for {
			row, err := r.step(ctx, s)
			if err != nil || !row {
				return err
			}
			if err := b.add(s); err != nil {
				return c.failed("get_table", err)
			}
		}
	}, b.mark)
	if err != nil {
		return nil, err
	}
	return b.table(), nil
}

// TableExists reports whether a table with the given name exists in the main
// database.
func (c *Conn) TableExists(name string) (bool, error) {
	end, err := c.begin(context.Background())
	if err != nil {
		return false, err
	}
	defer end()

	s, err := c.compile("table_exists", "select count(*) from sqlite_master where type='table' and name=?")
	if err != nil {
		return false, err
	}
	defer s.Finalize()
	if err := s.BindText(1, name); err != nil {
		return false, err
	}
	row, err := c.step(context.Background(), "table_exists", s, c.policy)
	if err != nil {
		return false, err
	}
	return row && s.ColumnInt64(0) > 0, nil
}

// CompileStatement compiles the first statement of query for repeated execution.
func (c *Conn) CompileStatement(query string) (*Statement, error) {
	if c.db == nil {
		return nil, types.ErrDatabaseNotOpen
	}
	s, err := c.compile("compile", query)
	if err != nil {
		return nil, err
	}
	return &Statement{conn: c, h: c.track(s), policy: c.policy}, nil
}

// failed records an engine error on its way back to the caller.
func (c *Conn) failed(op string, err error) error {
	c.metrics.errorsTotal.WithLabelValues(op, types.CodeName(types.PrimaryCode(types.Code(err)))).Inc()
	return err
}

// notOpen reports the misuse of a connection-bound object whose connection is
// closed.
func (c *Conn) notOpen() error {
	if c == nil || c.db == nil {
		return types.ErrDatabaseNotOpen
	}
	return nil
}
