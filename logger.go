package nb2doc

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Warning subtypes attached to diagnostics so downstream tooling can
// filter them.
const (
	WarnConfig       = "config"
	WarnExec         = "exec"
	WarnOutputType   = "output_type"
	WarnMimePriority = "mime_priority"
)

// NewLogger creates the build-wide logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// DocLogger logs diagnostics for a single document. Every message
// carries the document source path; warnings carry a subtype and, where
// known, a line number.
type DocLogger struct {
	l      *log.Logger
	source string
}

// NewDocLogger wraps base with the document source path. A nil base
// logs to stderr at the default level.
func NewDocLogger(base *log.Logger, source string) *DocLogger {
	if base == nil {
		base = NewLogger(os.Stderr, log.InfoLevel)
	}
	return &DocLogger{l: base.With("source", source), source: source}
}

// Source returns the document source path the logger is bound to.
func (d *DocLogger) Source() string { return d.source }

// Warning logs a diagnostic with its subtype. A line of 0 means the
// location is unknown.
func (d *DocLogger) Warning(msg, subtype string, line int) {
	if line > 0 {
		d.l.Warn(msg, "subtype", subtype, "line", line)
		return
	}
	d.l.Warn(msg, "subtype", subtype)
}

// Debug logs a development-level message with its subtype.
func (d *DocLogger) Debug(msg, subtype string) {
	d.l.Debug(msg, "subtype", subtype)
}

// Info logs a progress message.
func (d *DocLogger) Info(msg string, keyvals ...any) {
	d.l.Info(msg, keyvals...)
}
