// Package logger configures esbox diagnostics and optional capture of the
// script's output into rotated files.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
	DefaultLevel      = "warn"
)

// Config describes where esbox writes its own diagnostics and, optionally,
// where copies of the script's stdout/stderr go.
type Config struct {
	Level string // debug, info, warn, error
	Path  string // diagnostics file; empty logs to the console writer
	Color bool   // colorize console diagnostics
	File  FileConfig
}

// FileConfig holds script output capture paths and lumberjack rotation settings.
// If StdoutPath/StderrPath are empty and Dir is set, files will be
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type FileConfig struct {
	Dir        string
	StdoutPath string
	StderrPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (f FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

// ProcessWriters returns rotated writers that capture the script's stdout and
// stderr. Either may be nil when nothing is configured for that stream.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.File.StdoutPath
	stderr := c.File.StderrPath
	if stdout == "" && c.File.Dir != "" {
		stdout = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.File.Dir != "" {
		stderr = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = c.File.rotating(stdout)
	}
	if stderr != "" {
		errW = c.File.rotating(stderr)
	}
	return outW, errW, nil
}

// ParseLevel maps a level name to a slog.Level. Empty means DefaultLevel.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		s = DefaultLevel
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// New builds the diagnostics logger. When Path is set records go to a rotated
// file in plain text; otherwise they go to console. The returned closer
// releases the file and is a no-op for the console.
func New(c Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Path != "" {
		w := c.File.rotating(c.Path)
		return slog.New(slog.NewTextHandler(w, opts)), w, nil
	}
	var h slog.Handler
	if c.Color {
		h = NewColorTextHandler(console, opts, false)
	} else {
		h = slog.NewTextHandler(console, opts)
	}
	return slog.New(h), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
