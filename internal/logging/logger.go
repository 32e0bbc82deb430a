// Package logging prints pipeline progress and tool output through a
// charmbracelet logger whose level labels read "error:", "warn:" and
// "debug:".
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	charmlog "github.com/charmbracelet/log"
)

// Options configures New.
type Options struct {
	Output io.Writer
	// Verbose prints the fully resolved command instead of the subpath.
	Verbose bool
	// Debug echoes ordinary tool output and enables debug messages.
	Debug bool
	JSON  bool
	// Timestamps prefixes every line with the wall clock.
	Timestamps bool
}

// Logger is safe for concurrent use by stage workers.
type Logger struct {
	charm   *charmlog.Logger
	verbose bool
	debug   bool
}

// New returns a Logger writing to opts.Output (stderr when nil).
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := charmlog.InfoLevel
	if opts.Debug {
		level = charmlog.DebugLevel
	}
	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: opts.Timestamps,
		TimeFormat:      "15:04:05",
		Level:           level,
	})
	if opts.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	} else {
		l.SetStyles(levelStyles())
	}
	return &Logger{charm: l, verbose: opts.Verbose, debug: opts.Debug}
}

// Discard returns a Logger that drops everything, for tests and library use.
func Discard() *Logger {
	return New(Options{Output: io.Discard})
}

func levelStyles() *charmlog.Styles {
	st := charmlog.DefaultStyles()
	st.Levels[charmlog.DebugLevel] = lipgloss.NewStyle().SetString("debug:").Foreground(lipgloss.Color("6"))
	st.Levels[charmlog.InfoLevel] = lipgloss.NewStyle().SetString("")
	st.Levels[charmlog.WarnLevel] = lipgloss.NewStyle().SetString("warn:").Bold(true).Foreground(lipgloss.Color("3"))
	st.Levels[charmlog.ErrorLevel] = lipgloss.NewStyle().SetString("error:").Bold(true).Foreground(lipgloss.Color("9"))
	st.Levels[charmlog.FatalLevel] = lipgloss.NewStyle().SetString("fatal:").Bold(true).Foreground(lipgloss.Color("9"))
	return st
}

// DebugEnabled reports whether ordinary tool output is echoed.
func (l *Logger) DebugEnabled() bool { return l.debug }

// Progress announces one task: "<tool>: <subpath>", or "<tool>: <command>"
// in verbose mode.
func (l *Logger) Progress(tool, subpath, command string) {
	if l.verbose {
		l.charm.Info(tool + ": " + command)
		return
	}
	l.charm.Info(tool + ": " + subpath)
}

// ToolError surfaces one failure line of a task.
func (l *Logger) ToolError(tool, subpath, line string) {
	l.charm.Error(line, "tool", tool, "file", subpath)
}

// ToolOutput echoes an ordinary output line when debug is on.
func (l *Logger) ToolOutput(tool, subpath, line string) {
	if !l.debug {
		return
	}
	l.charm.Debug(line, "tool", tool, "file", subpath)
}

func (l *Logger) Debug(msg string, keyvals ...any) { l.charm.Debug(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...any)  { l.charm.Info(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...any)  { l.charm.Warn(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...any) { l.charm.Error(msg, keyvals...) }

// With returns a Logger that adds keyvals to every line.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{charm: l.charm.With(keyvals...), verbose: l.verbose, debug: l.debug}
}
