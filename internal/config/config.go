// Package config holds runtime configuration: defaults, CLI flag parsing, and
// validation. Defaults follow the ODM command line so submodel runs behave
// exactly like a top-level run.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// --- Enum types for validated string fields ---

// GroundMethod selects the external ground-classification algorithm.
type GroundMethod string

const (
	GroundPMF  GroundMethod = "pmf"  // Progressive morphological filter via "pdal ground" (default).
	GroundSMRF GroundMethod = "smrf" // Simple morphological filter via "pdal translate ... smrf".
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Stage names understood by --rerun, --rerun-from and --end-with.
const (
	StageDataset = "dataset"
	StageSplit   = "split"
	StageOpenSfM = "opensfm"
	StageDEM     = "dem"
)

// StageNames lists the workflow stages in execution order.
var StageNames = []string{StageDataset, StageSplit, StageOpenSfM, StageDEM}

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then mutated by [ParseFlags] before being passed (by pointer) to packages
// that need it.
type Config struct {
	// Project layout (--project-path and the positional dataset name).
	ProjectPath string
	Name        string

	// Split/merge.
	Split        int     // Default: 999999. Photo count above which the dataset is partitioned.
	SplitOverlap float64 // Default: 150 (meters).

	// Stage control.
	Rerun     string // Rerun only this stage.
	RerunAll  bool
	RerunFrom string // Rerun this stage and every later one.
	EndWith   string // Stop after this stage. Default: "dem".

	// OpenSfM tuning written to config.yaml.
	ResizeTo         int     // Default: 2048.
	MinNumFeatures   int     // Default: 8000.
	MaxConcurrency   int     // Default: 4.
	MatcherNeighbors int     // Default: 8.
	MatcherDistance  float64 // Default: 0 (disabled).

	// DEM generation.
	DSM           bool
	DTM           bool
	DEMResolution float64   // Default: 0.1.
	DEMRadius     []float64 // Default: [0.56]. One raster per radius.
	DEMOutputs    []string  // Default: ["idw"]. Only the first is honored.
	DEMDecimation int       // Default: 1 (no decimation).
	DEMMaxSD      *float64  // Optional outlier multiplier.
	DEMMaxZ       *float64  // Optional max elevation.
	DEMMaxAngle   *float64  // Optional max absolute scan angle.
	DEMReturnNum  *int      // Optional return number.

	// Ground classification.
	GroundMethod    GroundMethod // Default: "pmf".
	Slope           float64      // Default: 0.15.
	CellSize        float64      // Default: 1.0.
	InitialDistance float64      // Default: 0.7.
	MaxWindowSize   *float64     // Optional.
	MaxDistance     *float64     // Optional.
	Approximate     bool

	// External engines.
	PDALPath    string        // Default: "pdal".
	OpenSfMPath string        // Default: "opensfm".
	Timeout     time.Duration // Per-subprocess timeout. Default: 0 (none).
	TempDir     string        // Where pipeline descriptions are written. Default: os.TempDir().

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode // Default: "auto".
	LogFile   string    // Optional log file path.
	GraphFile string    // Optional DOT export of the stage graph.
	CheckOnly bool      // Run --check diagnostics and exit.

	// Args is the raw command line (without the program name), kept so that
	// submodels can be re-invoked with the same options.
	Args []string
}

// DefaultConfig returns a Config with ODM defaults. Used as the base before
// [ParseFlags] applies CLI overrides.
func DefaultConfig() Config {
	return Config{
		Split:            999999,
		SplitOverlap:     150,
		EndWith:          StageDEM,
		ResizeTo:         2048,
		MinNumFeatures:   8000,
		MaxConcurrency:   4,
		MatcherNeighbors: 8,
		MatcherDistance:  0,
		DEMResolution:    0.1,
		DEMRadius:        []float64{0.56},
		DEMOutputs:       []string{"idw"},
		DEMDecimation:    1,
		GroundMethod:     GroundPMF,
		Slope:            0.15,
		CellSize:         1.0,
		InitialDistance:  0.7,
		PDALPath:         "pdal",
		OpenSfMPath:      "opensfm",
		ColorMode:        ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum fields and stage names. When not in CheckOnly mode,
// it also requires the project path and dataset name. Numeric DEM and ground
// parameters are passed through to the engines unchecked.
func (c *Config) Validate() error {
	switch c.GroundMethod {
	case GroundPMF, GroundSMRF:
		// valid
	default:
		return errors.New("invalid ground method (use 'pmf' or 'smrf')")
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	for flagName, stage := range map[string]string{
		"rerun":      c.Rerun,
		"rerun-from": c.RerunFrom,
		"end-with":   c.EndWith,
	} {
		if stage != "" && !IsStage(stage) {
			return errors.Errorf("invalid --%s stage %q (use one of %s)", flagName, stage, strings.Join(StageNames, ", "))
		}
	}

	if c.CheckOnly {
		return nil
	}
	if c.ProjectPath == "" || c.Name == "" {
		return errors.New("need --project-path and a dataset name")
	}
	return nil
}

// IsStage reports whether name is a known workflow stage.
func IsStage(name string) bool {
	for _, s := range StageNames {
		if s == name {
			return true
		}
	}
	return false
}
