// Package sshlog provides the structured logging conventions used across
// the SSH server: a thin re-export of internal/logging's level/format
// handler selection, plus human-readable byte-count formatting for
// connection lifecycle and channel-throughput log lines.
package sshlog

import (
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/coinstash/sshgatewayd/internal/logging"
)

// NewLogger creates a new structured logger with the specified level and
// format. Supported levels: debug, info, warn, error. Supported formats:
// text, json.
func NewLogger(level, format string) *slog.Logger {
	return logging.NewLogger(level, format)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level, format string, w io.Writer) *slog.Logger {
	return logging.NewLoggerWithWriter(level, format, w)
}

// Bytes renders a byte count the way connection lifecycle and channel
// throughput log lines report it, e.g. "482 kB".
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
