// Package logging provides the leveled, optionally colored logger used by
// every stage. Output goes to stdout (ERROR to stderr) and, when configured,
// is appended uncolored to a log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
)

// Palette holds the ANSI sequences for each level. All fields are empty when
// colors are disabled, making concatenation a no-op.
type Palette struct {
	Red, Green, Yellow, Blue, Cyan, Magenta, Reset string
}

var ansiPalette = Palette{
	Red:     "\033[1;91m",
	Green:   "\033[1;92m",
	Yellow:  "\033[1;93m",
	Blue:    "\033[1;94m",
	Cyan:    "\033[1;96m",
	Magenta: "\033[1;95m",
	Reset:   "\033[0m",
}

// Logger provides leveled, optionally colored logging with optional file sink.
type Logger struct {
	mu      *sync.Mutex
	palette Palette
	out     io.Writer
	errOut  io.Writer
	file    *os.File
	prefix  string
}

// NewLogger resolves colors from cfg and optionally opens cfg.LogFile in
// append mode. Call Close when done.
func NewLogger(cfg *config.Config) (*Logger, error) {
	l := &Logger{mu: &sync.Mutex{}, out: os.Stdout, errOut: os.Stderr}
	if colorEnabled(cfg.ColorMode) {
		l.palette = ansiPalette
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, errors.Wrap(err, "unable to create log directory")
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to open log file %s", cfg.LogFile)
		}
		l.file = f
	}
	return l, nil
}

// New returns an uncolored logger writing to out (and errOut for ERROR).
// Intended for tests and embedding.
func New(out, errOut io.Writer) *Logger {
	return &Logger{mu: &sync.Mutex{}, out: out, errOut: errOut}
}

// WithPrefix returns a logger sharing l's sinks that tags every line with
// prefix, e.g. a submodel name. Only the parent should be closed.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{mu: l.mu, palette: l.palette, out: l.out, errOut: l.errOut, file: l.file, prefix: prefix}
}

// Palette returns the active color palette.
func (l *Logger) Palette() Palette { return l.palette }

// colorEnabled honors the configured mode, TTY detection, and the NO_COLOR
// env var (https://no-color.org).
func colorEnabled(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default:
		return IsTerminal(os.Stdout) &&
			os.Getenv("NO_COLOR") == "" &&
			strings.ToLower(os.Getenv("TERM")) != "dumb"
	}
}

// IsTerminal reports whether f is attached to a TTY (character device).
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) line(level, color, text string) {
	if l.prefix != "" {
		text = "[" + l.prefix + "] " + text
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	plain := ts + " [" + level + "] " + text + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.out
	if level == "ERROR" {
		out = l.errOut
	}
	if color != "" {
		_, _ = io.WriteString(out, ts+" "+color+"["+level+"]"+l.palette.Reset+" "+text+"\n")
	} else {
		_, _ = io.WriteString(out, plain)
	}
	if l.file != nil {
		_, _ = io.WriteString(l.file, plain)
	}
}

// Info logs at INFO level (blue).
func (l *Logger) Info(format string, args ...interface{}) {
	l.line("INFO", l.palette.Blue, fmt.Sprintf(format, args...))
}

// Success logs at SUCCESS level (green).
func (l *Logger) Success(format string, args ...interface{}) {
	l.line("SUCCESS", l.palette.Green, fmt.Sprintf(format, args...))
}

// Warn logs at WARN level (yellow).
func (l *Logger) Warn(format string, args ...interface{}) {
	l.line("WARN", l.palette.Yellow, fmt.Sprintf(format, args...))
}

// Error logs at ERROR level (red), to stderr.
func (l *Logger) Error(format string, args ...interface{}) {
	l.line("ERROR", l.palette.Red, fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level (cyan) only when verbose; no-op otherwise.
func (l *Logger) Debug(verbose bool, format string, args ...interface{}) {
	if !verbose {
		return
	}
	l.line("DEBUG", l.palette.Cyan, fmt.Sprintf(format, args...))
}
