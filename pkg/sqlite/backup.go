package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

const (
	directionBackup  = "backup"
	directionRestore = "restore"
)

// Backup copies the open database into the file at target, creating or replacing
// its contents. The target is switched to WAL journaling first.
func (c *Conn) Backup(target string) error {
	return c.BackupContext(context.Background(), target)
}

// BackupContext is Backup with cancellation.
func (c *Conn) BackupContext(ctx context.Context, target string) error {
	return c.copyDatabase(ctx, target, directionBackup)
}

// Restore replaces the contents of the open database with those of the file at
// source.
func (c *Conn) Restore(source string) error {
	return c.RestoreContext(context.Background(), source)
}

// RestoreContext is Restore with cancellation.
func (c *Conn) RestoreContext(ctx context.Context, source string) error {
	return c.copyDatabase(ctx, source, directionRestore)
}

// copyDatabase runs one backup session between c and the database at path. Every
// page is copied in a single step; contention is retried under the connection's
// policy.
func (c *Conn) copyDatabase(ctx context.Context, path, direction string) (err error) {
	end, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer end()

	session := uuid.NewString()
	logger := log.With(c.logger, "session", session, "direction", direction, "path", path)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
			level.Error(logger).Log("msg", "backup session failed", "err", err)
		}
		c.metrics.backupsTotal.WithLabelValues(direction, outcome).Inc()
	}()

	other := NewConn(
		WithEngine(c.engine),
		WithLogger(c.logger),
		WithMetrics(c.metrics),
		WithRetryPolicy(c.policy),
		WithBusyTimeout(c.busyTimeout),
	)
	if err := other.Open(path); err != nil {
		return err
	}
	defer other.Close()

	src, dst, target := c, other, path
	if direction == directionRestore {
		src, dst, target = other, c, c.path
	} else if _, err := other.ExecDMLContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		level.Warn(logger).Log("msg", "cannot switch target to WAL", "err", err)
	}

	level.Debug(logger).Log("msg", "starting backup session")
	b, err := src.db.BackupTo(dst.db)
	if err != nil {
		return c.failed(direction, err)
	}

	for tries := 0; ; {
		more, err := b.Step(-1)
		if err == nil && !more {
			pages := b.PageCount()
			if cerr := b.Close(); cerr != nil {
				return c.failed(direction, cerr)
			}
			c.metrics.backupPagesTotal.WithLabelValues(direction).Add(float64(pages))
			level.Info(logger).Log("msg", "backup session complete", "pages", pages, "duration", time.Since(start))
			return nil
		}
		if err == nil {
			continue
		}

		code := types.Code(err)
		if types.IsContention(code) && c.policy.CanRetry(tries) {
			level.Warn(logger).Log("msg", "database is locked, retrying", "code", types.CodeName(code), "attempt", tries+1)
			c.metrics.retriesTotal.WithLabelValues(direction, types.CodeName(types.PrimaryCode(code))).Inc()
			tries++
			if werr := c.policy.Wait(ctx); werr != nil {
				_ = b.Close()
				return werr
			}
			continue
		}
		_ = b.Close()
		return c.failed(direction, targetError(target, err))
	}
}

// targetError names the file a failed page copy was writing. The engine records a
// failed step on the target connection with the status's own message, so err
// already carries the target's status and message.
func targetError(target string, err error) error {
	msg := err.Error()
	var e *types.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	return types.NewError(types.Code(err), fmt.Sprintf("%s: %s", target, msg))
}
