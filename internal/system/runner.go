// Package system runs external engines (pdal, opensfm, and recursive odm
// invocations) as blocking subprocesses.
package system

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const waitDelay = 2 * time.Second

// Command is a fully resolved subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the parent environment; the child always inherits
	// os.Environ().
	Env []string
	Dir string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes commands. Output is the combined stdout/stderr of the
// process and is returned even when the command fails.
type Runner interface {
	Run(ctx context.Context, cmd Command, stream io.Writer) (output string, err error)
}

// ExecRunner runs commands with os/exec. A zero Timeout means no deadline
// beyond ctx.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner returns an ExecRunner with the given per-command timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run starts cmd, waits for it, and returns its combined output. When stream
// is non-nil the output is also tee'd to it in real time. A non-zero exit is
// returned unclassified; errors.Cause yields the *exec.ExitError.
func (r *ExecRunner) Run(ctx context.Context, cmd Command, stream io.Writer) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	// Grandchildren can hold the output pipe open after a kill.
	c.WaitDelay = waitDelay

	var buf bytes.Buffer
	var w io.Writer = &buf
	if stream != nil {
		w = io.MultiWriter(&buf, stream)
	}
	c.Stdout = w
	c.Stderr = w

	err := c.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return buf.String(), errors.Wrapf(ctxErr, "%s interrupted", cmd)
	}
	if err != nil {
		return buf.String(), errors.Wrapf(err, "command failed: %s", cmd)
	}
	return buf.String(), nil
}

// ExitCode extracts the process exit code from an error returned by Run.
// It returns 0 for nil and -1 when err did not come from a finished process.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
