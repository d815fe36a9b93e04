// Package logging builds the go-kit logger used by the command.
package logging

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Levels lists the accepted level names, most verbose first.
var Levels = []string{"debug", "info", "warn", "error"}

// New returns a logfmt logger writing to w that drops entries below lvl.
func New(w io.Writer, lvl string) (log.Logger, error) {
	allowed, err := Filter(lvl)
	if err != nil {
		return nil, err
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, allowed)
	return log.With(logger, "ts", log.DefaultTimestampUTC), nil
}

// Filter maps a level name to a level.Option.
func Filter(lvl string) (level.Option, error) {
	switch lvl {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, errors.Errorf("unknown log level %q, expected one of %v", lvl, Levels)
	}
}
