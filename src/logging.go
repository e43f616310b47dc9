package loratnc

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{ //nolint:exhaustruct
	ReportTimestamp: true,
	TimeFormat:      time.TimeOnly,
	Prefix:          "loratnc",
})

/*-------------------------------------------------------------------
 *
 * Name:        SetupLogging
 *
 * Purpose:     Configure the package logger once at start up.
 *
 * Inputs:	w		- Destination, normally stderr.
 *		level		- debug, info, warn, error.
 *		timestamps	- Prefix each line with the time of day.
 *
 *--------------------------------------------------------------------*/

func SetupLogging(w io.Writer, level string, timestamps bool) (*log.Logger, error) {
	var lvl, err = log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, ErrConfigInvalid)
	}

	logger = log.NewWithOptions(w, log.Options{ //nolint:exhaustruct
		Level:           lvl,
		ReportTimestamp: timestamps,
		TimeFormat:      time.TimeOnly,
		Prefix:          "loratnc",
	})

	return logger, nil
}

func Logger() *log.Logger {
	return logger
}

// componentLogger tags l, or the package logger when l is nil, with a component name.
func componentLogger(l *log.Logger, component string) *log.Logger {
	if l == nil {
		l = logger
	}

	return l.With("component", component)
}
