// Package logging owns the process-wide base logger.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "plumbtest",
	Level:           log.WarnLevel,
})

// For returns a logger for component. Levels and outputs set later on the
// base logger are not seen by loggers that already exist, so components
// call For when they are constructed.
func For(component string) *log.Logger {
	return base.WithPrefix("plumbtest/" + component)
}

// SetLevel parses and applies a level such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// SetOutput redirects the base logger.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}
