// Package telelog is a thin structured-logging wrapper over
// github.com/rs/zerolog, giving every stage of a file's processing run a
// logger that already carries the run/file/construct IDs as structured
// fields rather than requiring each call site to remember to attach them.
package telelog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the base logger for a run, writing to w (os.Stderr in
// production, a buffer in tests) with runID attached to every line.
func New(w io.Writer, runID string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).With().Timestamp().Str("run_id", runID).Logger()
}

// NewConsole is New, but pretty-printed for an interactive terminal, the way
// CLI tools in this pack default to when stderr is a TTY.
func NewConsole(runID string) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(cw).With().Timestamp().Str("run_id", runID).Logger()
}

// ForFile returns a child logger scoped to one source file within the run.
func ForFile(base zerolog.Logger, relPath string, language string) zerolog.Logger {
	return base.With().Str("file", relPath).Str("language", language).Logger()
}

// ForConstruct further scopes a file logger to one construct within it.
func ForConstruct(fileLogger zerolog.Logger, kind string, startLine int) zerolog.Logger {
	return fileLogger.With().Str("construct_kind", kind).Int("start_line", startLine).Logger()
}
