package pdal

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/system"
)

// Logger is the logging surface the executor needs.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Executor runs pipelines and ground classification through the pdal binary.
// It holds no per-run state, so concurrent Run calls are safe: every call
// writes its own uniquely named pipeline file.
type Executor struct {
	Binary  string
	TempDir string // Defaults to os.TempDir().
	Verbose bool
	Runner  system.Runner
	Log     Logger
	// Stdout receives engine output in verbose mode. Defaults to os.Stdout.
	Stdout io.Writer
}

// NewExecutor builds an Executor from cfg.
func NewExecutor(cfg *config.Config, runner system.Runner, log Logger) *Executor {
	return &Executor{
		Binary:  cfg.PDALPath,
		TempDir: cfg.TempDir,
		Verbose: cfg.Verbose,
		Runner:  runner,
		Log:     log,
	}
}

// Run serializes p to a temporary JSON file, runs "pdal pipeline -i <file>"
// and waits for it. The file is removed on every return path. In verbose
// mode the pipeline is logged and engine output is streamed; otherwise the
// output is discarded. A failing engine's error is returned unclassified.
func (e *Executor) Run(ctx context.Context, p *Pipeline) error {
	if e.Verbose {
		pretty, err := json.MarshalIndent(p, "", "    ")
		if err != nil {
			return errors.Wrap(err, "unable to render pipeline")
		}
		e.Log.Info("%s", pretty)
	}

	path, err := e.writePipeline(p)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	e.Log.Debug(e.Verbose, "Pipeline file: %s", path)

	_, err = e.Runner.Run(ctx, system.Command{
		Name: e.Binary,
		Args: []string{"pipeline", "-i", path},
	}, e.stream())
	return err
}

// writePipeline creates <TempDir>/pipeline-<uuid>.json exclusively.
func (e *Executor) writePipeline(p *Pipeline) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "unable to encode pipeline")
	}

	dir := e.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "pipeline-"+uuid.NewString()+".json")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", errors.Wrap(err, "unable to create pipeline file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.Wrapf(err, "unable to write pipeline file %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.Wrapf(err, "unable to close pipeline file %s", path)
	}
	return path, nil
}

// stream returns the writer for live engine output, or nil when quiet.
func (e *Executor) stream() io.Writer {
	if !e.Verbose {
		return nil
	}
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}
