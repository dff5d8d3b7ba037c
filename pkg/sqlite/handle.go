package sqlite

import (
	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// noCopy marks structs that go vet's copylocks check must refuse to copy.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// handle is the single owner of a compiled statement. Statements and cursors refer to
// a handle by pointer, so moving ownership moves the pointer and the engine statement
// is finalized at most once no matter how many holders saw it.
type handle struct {
	_    noCopy
	conn *Conn
	stmt engine.Stmt
}

// get returns the live statement, or ErrNullStatement once it has been released. A
// nil handle is valid and empty.
func (h *handle) get() (engine.Stmt, error) {
	if h == nil || h.stmt == nil {
		return nil, types.ErrNullStatement
	}
	return h.stmt, nil
}

// finalize releases the statement. Later calls are no-ops.
func (h *handle) finalize() error {
	if h == nil || h.stmt == nil {
		return nil
	}
	s := h.stmt
	h.stmt = nil
	if h.conn != nil {
		delete(h.conn.handles, h)
	}
	return s.Finalize()
}
