package pdal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/peddyhh/ODM/internal/system"
)

// fakeRunner records commands and, for "pipeline -i <file>", captures the
// pipeline file content while it still exists.
type fakeRunner struct {
	mu       sync.Mutex
	commands []system.Command
	files    map[string][]byte
	output   string
	err      error
}

func (r *fakeRunner) Run(_ context.Context, cmd system.Command, stream io.Writer) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	if len(cmd.Args) == 3 && cmd.Args[0] == "pipeline" {
		if r.files == nil {
			r.files = make(map[string][]byte)
		}
		data, err := os.ReadFile(cmd.Args[2])
		if err != nil {
			return "", fmt.Errorf("pipeline file missing during run: %w", err)
		}
		r.files[cmd.Args[2]] = data
	}
	if stream != nil {
		_, _ = io.WriteString(stream, r.output)
	}
	return r.output, r.err
}

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *recordingLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warn(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debug(verbose bool, format string, args ...interface{}) {
	if verbose {
		l.Info(format, args...)
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
