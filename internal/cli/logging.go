package cli

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// newLogger returns a logfmt logger on w that drops records below lvl.
func newLogger(w io.Writer, lvl string) log.Logger {
	var allow level.Option
	switch lvl {
	case types.LogLevelDebug:
		allow = level.AllowDebug()
	case types.LogLevelWarn:
		allow = level.AllowWarn()
	case types.LogLevelError:
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}
