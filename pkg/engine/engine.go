// Package engine defines the narrow surface the connection layer consumes from an
// embedded SQL engine, together with the adapters that provide it.
//
// Build modes:
//   - Default: zombiezen.com/go/sqlite, pure Go on top of modernc.org/sqlite
//   - cgo_sqlite tag: github.com/mattn/go-sqlite3 (requires CGO_ENABLED=1)
//
// Every error returned by an adapter is a *types.Error carrying the engine's
// extended result code and message.
package engine

import (
	"fmt"
	"slices"
	"time"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// ColumnType is the storage class of a column value in the current row.
type ColumnType int

// Storage classes, numbered as the engine numbers them.
const (
	TypeInteger ColumnType = 1
	TypeFloat   ColumnType = 2
	TypeText    ColumnType = 3
	TypeBlob    ColumnType = 4
	TypeNull    ColumnType = 5
)

// String returns the SQL name of the storage class.
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	case TypeNull:
		return "NULL"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// Opener opens database files. Open creates the file if it does not exist and
// enables extended result codes.
type Opener interface {
	Name() string
	// Version returns the version of the linked SQLite library.
	Version() string
	Open(path string) (Conn, error)
}

// Conn is an open database handle. Implementations are not safe for concurrent use,
// except that the channel passed to SetInterrupt may be closed from any goroutine.
type Conn interface {
	// Prepare compiles the first statement of query and returns the unparsed
	// remainder. stmt is nil when query holds no statement.
	Prepare(query string) (stmt Stmt, tail string, err error)

	// Changes returns the rows modified by the most recent completed statement.
	Changes() int
	LastInsertRowID() int64

	// Autocommit reports whether no explicit transaction is open.
	Autocommit() bool

	SetBusyTimeout(d time.Duration) error

	// SetInterrupt arranges for in-flight and future engine calls to fail with
	// SQLITE_INTERRUPT once done is closed. A nil channel clears it.
	SetInterrupt(done <-chan struct{})

	// BackupTo starts copying the main database of this connection into the main
	// database of dst, which must come from the same Opener.
	BackupTo(dst Conn) (Backup, error)

	Close() error
}

// Stmt is a compiled statement. Parameter and column indices follow the engine:
// parameters are 1-based, columns 0-based.
type Stmt interface {
	// Step advances to the next row. It returns false with a nil error once the
	// statement has run to completion. A failed Step leaves the statement reset.
	Step() (row bool, err error)
	Reset() error
	ClearBindings() error
	Finalize() error

	BindParamCount() int
	// BindParamIndex returns the position of a named parameter, or 0.
	BindParamIndex(name string) int
	BindText(param int, v string) error
	BindInt64(param int, v int64) error
	BindFloat(param int, v float64) error
	BindBytes(param int, v []byte) error
	BindNull(param int) error

	ColumnCount() int
	ColumnName(col int) string
	ColumnType(col int) ColumnType
	// ColumnDeclType returns the declared type of the table column a result column
	// originates from, or "" for expressions.
	ColumnDeclType(col int) string
	ColumnText(col int) string
	ColumnInt64(col int) int64
	ColumnFloat(col int) float64
	ColumnBytes(col int) []byte
}

// Backup is an in-progress page copy between two connections.
type Backup interface {
	// Step copies up to pages pages, all remaining pages when pages is negative. It
	// returns false with a nil error once the copy is complete.
	Step(pages int) (more bool, err error)
	Remaining() int
	PageCount() int
	Close() error
}

var openers = map[string]Opener{}

// register makes an adapter available to Lookup. Adapters call it from init.
func register(o Opener) {
	openers[o.Name()] = o
}

// Lookup returns the adapter with the given name. An empty name selects Default.
// Returns types.ErrEngineUnknown if the adapter is unknown or was not built in.
func Lookup(name string) (Opener, error) {
	if name == types.EngineDefault {
		return Default(), nil
	}
	o, ok := openers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", types.ErrEngineUnknown, name, Names())
	}
	return o, nil
}

// Names lists the adapters compiled into this binary.
func Names() []string {
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Default returns the adapter selected by build tags.
func Default() Opener {
	return openers[defaultEngine]
}

// IsCGO reports whether the default adapter links the C library.
func IsCGO() bool {
	return defaultEngine == types.EngineCGO
}

// rangeError reports a bind position outside 1..count.
func rangeError(kind string, param int) error {
	return types.NewError(sqlite3.SQLITE_RANGE, fmt.Sprintf("error binding %s param %d: column index out of range", kind, param))
}

func checkParam(kind string, param, count int) error {
	if param < 1 || param > count {
		return rangeError(kind, param)
	}
	return nil
}
