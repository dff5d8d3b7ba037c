package sqlite

import (
	"context"

	"github.com/go-kit/log/level"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// restartError reports that a contention retry rolled back the transaction a
// script opened, so the script has to run again from the statement that opened it.
type restartError struct {
	err error
}

func (e *restartError) Error() string { return e.err.Error() }
func (e *restartError) Unwrap() error { return e.err }

// retrier steps statements under a retry policy. Its retry count carries over
// between steps, so one retrier bounds the retries of everything it steps.
type retrier struct {
	conn   *Conn
	op     string
	policy types.RetryPolicy
	tries  int

	// restart, if set, is asked after a BUSY retry has rolled back a transaction.
	// When it reports true, step returns a *restartError instead of stepping again.
	restart func() bool

	// resume, if set, brings a statement back to where it was before a failed Step,
	// which the engine resets. It reports false when the position is lost.
	resume func(engine.Stmt) (bool, error)
}

// step advances s under policy p.
//
// BUSY rolls back an open transaction, pauses and retries; LOCKED pauses and retries
// without rolling back. Once the retries are spent, or on any other failure, a
// status in the fatal class rolls back an open transaction before the error is
// returned. With p.MaxRetries = K a persistently contended statement is stepped
// K+1 times. A failed Step resets s, so a retry starts it over.
func (c *Conn) step(ctx context.Context, op string, s engine.Stmt, p types.RetryPolicy) (bool, error) {
	r := retrier{conn: c, op: op, policy: p}
	return r.step(ctx, s)
}

func (r *retrier) step(ctx context.Context, s engine.Stmt) (bool, error) {
	c := r.conn
	var prev error
	for ; ; r.tries++ {
		row, lost, err := r.next(s, prev)
		if err == nil {
			return row, nil
		}
		prev = err

		code := types.Code(err)
		if !lost && types.IsContention(code) && r.policy.CanRetry(r.tries) {
			name := types.CodeName(types.PrimaryCode(code))
			level.Warn(c.logger).Log("msg", "database is locked, retrying", "op", r.op, "code", name, "attempt", r.tries+1, "max", r.policy.MaxRetries)
			c.metrics.retriesTotal.WithLabelValues(r.op, name).Inc()
			rolledBack := types.IsBusy(code) && c.rollback(r.op)
			if werr := r.policy.Wait(ctx); werr != nil {
				c.rollback(r.op)
				return false, werr
			}
			if rolledBack && r.restart != nil && r.restart() {
				r.tries++
				return false, &restartError{err: err}
			}
			continue
		}

		if types.IsFatal(code) {
			c.rollback(r.op)
		}
		return false, c.failed(r.op, err)
	}
}

// next steps s. After a failed Step it first replays s through resume; when the
// position cannot be recovered lost is true and err is prev.
func (r *retrier) next(s engine.Stmt, prev error) (row, lost bool, err error) {
	if prev != nil && r.resume != nil {
		ok, err := r.resume(s)
		if err != nil {
			return false, false, err
		}
		if !ok {
			return false, true, prev
		}
	}
	row, err = s.Step()
	return row, false, err
}

// rollback abandons the open transaction, if any, and reports whether one was
// rolled back. Failures are logged and otherwise ignored.
func (c *Conn) rollback(op string) bool {
	if c.db == nil || c.db.Autocommit() {
		return false
	}
	c.arm()

	outcome := "ok"
	err := c.execOnce("ROLLBACK")
	if err != nil {
		outcome = "failed"
		level.Warn(c.logger).Log("msg", "rollback failed", "op", op, "err", err)
	} else {
		level.Warn(c.logger).Log("msg", "rolled back transaction", "op", op)
	}
	c.metrics.rollbacksTotal.WithLabelValues(op, outcome).Inc()
	return err == nil && c.db.Autocommit()
}

// execOnce runs a single statement without retries.
func (c *Conn) execOnce(query string) error {
	s, _, err := c.db.Prepare(query)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	defer s.Finalize()
	for {
		row, err := s.Step()
		if err != nil || !row {
			return err
		}
	}
}
