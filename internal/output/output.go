// Package output carries the process-wide verbosity/quiet flags behind an
// explicit structured handle (instead of bare package-level atomics) and
// provides a thin logging façade over zerolog for the orchestrators.
package output

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Context threads the verbosity/quiet flags and logger through orchestrators.
// It is constructed once in main and never mutated after the subcommand starts.
type Context struct {
	verbose *atomic.Bool
	quiet   *atomic.Bool
	Logger  zerolog.Logger
}

// New builds an output Context, configuring the logger level from verbose/quiet.
func New(verbose, quiet bool) *Context {
	v := &atomic.Bool{}
	v.Store(verbose)

	q := &atomic.Bool{}
	q.Store(quiet)

	level := zerolog.InfoLevel

	switch {
	case quiet:
		level = zerolog.Disabled
	case verbose:
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:          os.Stderr,
		PartsExclude: []string{zerolog.TimestampFieldName},
		FormatLevel: func(i any) string {
			levelStr, ok := i.(string)
			if !ok {
				return "UNKNOWN:"
			}

			lvl, err := zerolog.ParseLevel(levelStr)
			if err != nil {
				return "UNKNOWN:"
			}

			if lvl == zerolog.InfoLevel {
				return ""
			}

			return fmt.Sprintf("%s:", levelStr)
		},
	}

	return &Context{
		verbose: v,
		quiet:   q,
		Logger:  zerolog.New(writer).Level(level),
	}
}

// Verbose reports whether verbose output was requested.
func (c *Context) Verbose() bool { return c.verbose.Load() }

// Quiet reports whether quiet (suppressed) output was requested.
func (c *Context) Quiet() bool { return c.quiet.Load() }

// Printf writes a line to stdout unless quiet mode is active.
func (c *Context) Printf(format string, args ...any) {
	if c.Quiet() {
		return
	}

	fmt.Printf(format, args...)
}

// Warn logs a warning through the logger; warnings never alter exit status.
func (c *Context) Warn(msg string) {
	c.Logger.Warn().Msg(msg)
}
