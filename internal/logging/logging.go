// Package logging builds the structured loggers shared by the client and the
// server.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = log.InfoLevel

// ParseLevel maps a configured level name onto a log.Level. Unknown or empty
// names yield DefaultLevel.
func ParseLevel(name string) log.Level {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultLevel
	}
	lvl, err := log.ParseLevel(strings.ToLower(name))
	if err != nil {
		return DefaultLevel
	}
	return lvl
}

// New returns a logger writing timestamped logfmt-style lines to w.
func New(w io.Writer, level, prefix string) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(level),
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
}

// Open appends to the log file at path, creating parent directories. The
// returned closer releases the file.
func Open(path, level, prefix string) (*log.Logger, io.Closer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil, fmt.Errorf("log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := New(f, level, prefix)
	logger.SetFormatter(log.LogfmtFormatter)
	return logger, f, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
