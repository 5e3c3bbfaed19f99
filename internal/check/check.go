// Package check provides system diagnostics (--check mode) and pre-run
// dependency validation (CheckDeps) for pdal, opensfm and the temp directory.
package check

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/system"
)

// Sentinel errors returned by CheckDeps when a required tool is missing.
var (
	ErrPDALNotFound       = errors.New("pdal not found on PATH")
	ErrOpenSfMNotFound    = errors.New("opensfm not found on PATH")
	ErrTempDirNotWritable = errors.New("temp directory is not writable")
)

// requiredDrivers are the pdal stages pipelines and ground classification use.
var requiredDrivers = []string{
	"readers.las",
	"writers.las",
	"writers.gdal",
	"filters.range",
	"filters.outlier",
	"filters.decimation",
	"filters.crop",
	"filters.merge",
	"filters.pmf",
	"filters.smrf",
}

// Logger is the minimal logging interface needed by RunCheck.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// RunCheck prints the availability of pdal, its drivers, opensfm and the
// temp directory. It is informational only and does not stop on failure.
func RunCheck(ctx context.Context, cfg *config.Config, runner system.Runner, log Logger) {
	log.Info("=== System Check ===")

	if checkPDAL(ctx, cfg, runner, log) {
		checkDrivers(ctx, cfg, runner, log)
	}
	checkOpenSfM(cfg, log)
	checkTempDir(cfg, log)
}

func checkPDAL(ctx context.Context, cfg *config.Config, runner system.Runner, log Logger) bool {
	if _, err := exec.LookPath(cfg.PDALPath); err != nil {
		log.Error("pdal not found (%s)", cfg.PDALPath)
		return false
	}
	out, err := runner.Run(ctx, system.Command{Name: cfg.PDALPath, Args: []string{"--version"}}, nil)
	if err != nil {
		log.Warn("pdal found but --version failed: %v", err)
		return false
	}
	log.Success("pdal: %s", firstLine(out))
	return true
}

// checkDrivers lists the required pdal drivers that are missing.
func checkDrivers(ctx context.Context, cfg *config.Config, runner system.Runner, log Logger) {
	out, err := runner.Run(ctx, system.Command{Name: cfg.PDALPath, Args: []string{"--drivers"}}, nil)
	if err != nil {
		log.Warn("Could not list pdal drivers: %v", err)
		return
	}
	missing := missingDrivers(out)
	if len(missing) == 0 {
		log.Success("pdal drivers: all %d required drivers available", len(requiredDrivers))
		return
	}
	for _, d := range missing {
		log.Error("pdal driver missing: %s", d)
	}
}

func missingDrivers(listing string) []string {
	available := make(map[string]bool)
	for _, line := range strings.Split(listing, "\n") {
		for _, field := range strings.Fields(line) {
			available[field] = true
		}
	}
	var missing []string
	for _, d := range requiredDrivers {
		if !available[d] {
			missing = append(missing, d)
		}
	}
	return missing
}

func checkOpenSfM(cfg *config.Config, log Logger) {
	path, err := exec.LookPath(cfg.OpenSfMPath)
	if err != nil {
		log.Error("opensfm not found (%s)", cfg.OpenSfMPath)
		return
	}
	log.Success("opensfm: %s", path)
}

func checkTempDir(cfg *config.Config, log Logger) {
	if err := tempDirWritable(cfg.TempDir); err != nil {
		log.Error("%v", err)
		return
	}
	log.Success("temp directory writable: %s", tempDir(cfg.TempDir))
}

// CheckDeps is the pre-run validation: pdal and opensfm must be on PATH and
// the temp directory must accept pipeline files. Returns a sentinel error
// on failure.
func CheckDeps(cfg *config.Config) error {
	if _, err := exec.LookPath(cfg.PDALPath); err != nil {
		return ErrPDALNotFound
	}
	if _, err := exec.LookPath(cfg.OpenSfMPath); err != nil {
		return ErrOpenSfMNotFound
	}
	return tempDirWritable(cfg.TempDir)
}

// --- internal helpers ---

func tempDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	return dir
}

func tempDirWritable(dir string) error {
	f, err := os.CreateTemp(tempDir(dir), "odm-check-*")
	if err != nil {
		return errors.Wrap(ErrTempDirNotWritable, err.Error())
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		return s[:idx]
	}
	return s
}
