package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into project, split/merge, stage control, OpenSfM, DEM,
// ground classification, engines, display, and utility.
// Negated flags (e.g. --no-color) are applied after Parse so Config defaults hold unless set.

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseFlags parses args (without the program name) into cfg. On --help or
// --version it prints and exits. On error it returns non-nil (e.g. unknown
// flag, missing dataset name).
func ParseFlags(cfg *Config, args []string, version string) error {
	var negated negatedFlags
	fs := newFlagSet(cfg, &negated)
	fs.Usage = func() { printUsage(os.Stderr, version) }

	if err := fs.Parse(args); err != nil {
		return err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp {
		printUsage(os.Stderr, version)
		os.Exit(0)
	}
	if negated.showVersion {
		fmt.Fprintln(os.Stdout, "odm v"+version)
		os.Exit(0)
	}

	cfg.Args = append([]string(nil), args...)
	return parsePositionalArgs(fs, cfg)
}

// IsBoolFlag reports whether name is a known flag that takes no value. The
// second result is false for unknown flags. Used when rewriting a command
// line for a submodel run.
func IsBoolFlag(name string) (isBool, known bool) {
	cfg := DefaultConfig()
	var n negatedFlags
	f := newFlagSet(&cfg, &n).Lookup(name)
	if f == nil {
		return false, false
	}
	bf, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && bf.IsBoolFlag(), true
}

// negatedFlags holds boolean flags that are applied after Parse.
// These either invert a default or trigger exit (showHelp, showVersion).
type negatedFlags struct {
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

func newFlagSet(cfg *Config, n *negatedFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("odm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	defineProjectFlags(fs, cfg)
	defineStageFlags(fs, cfg)
	defineOpenSfMFlags(fs, cfg)
	defineDEMFlags(fs, cfg)
	defineGroundFlags(fs, cfg)
	defineEngineFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, n)
	defineUtilityFlags(fs, n)
	return fs
}

// defineProjectFlags registers --project-path, --split, --split-overlap.
func defineProjectFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.ProjectPath, "project-path", "", "Path to the project folder")
	fs.IntVar(&cfg.Split, "split", cfg.Split, "Photo count above which the dataset is split into submodels")
	fs.Float64Var(&cfg.SplitOverlap, "split-overlap", cfg.SplitOverlap, "Overlap between submodels in meters")
}

// defineStageFlags registers --rerun, --rerun-all, --rerun-from, --end-with.
func defineStageFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Rerun, "rerun", "", "Rerun only this stage")
	fs.BoolVar(&cfg.RerunAll, "rerun-all", false, "Rerun every stage")
	fs.StringVar(&cfg.RerunFrom, "rerun-from", "", "Rerun this stage and all later stages")
	fs.StringVar(&cfg.EndWith, "end-with", cfg.EndWith, "Stop after this stage")
}

// defineOpenSfMFlags registers the OpenSfM tuning values written to config.yaml.
func defineOpenSfMFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.ResizeTo, "resize-to", cfg.ResizeTo, "Feature extraction image size")
	fs.IntVar(&cfg.MinNumFeatures, "min-num-features", cfg.MinNumFeatures, "Minimum features per image")
	fs.IntVar(&cfg.MaxConcurrency, "max-concurrency", cfg.MaxConcurrency, "OpenSfM processes")
	fs.IntVar(&cfg.MatcherNeighbors, "matcher-neighbors", cfg.MatcherNeighbors, "GPS neighbors to match")
	fs.Float64Var(&cfg.MatcherDistance, "matcher-distance", cfg.MatcherDistance, "GPS distance to match (0 disables)")
}

// defineDEMFlags registers DSM/DTM generation options.
func defineDEMFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.DSM, "dsm", false, "Build a digital surface model")
	fs.BoolVar(&cfg.DTM, "dtm", false, "Build a digital terrain model")
	fs.Float64Var(&cfg.DEMResolution, "dem-resolution", cfg.DEMResolution, "DEM cell size in meters")
	fs.Var(&floatListValue{&cfg.DEMRadius}, "dem-radius", "Comma separated IDW radii, one raster per radius")
	fs.Var(&stringListValue{&cfg.DEMOutputs}, "dem-outputs", "Comma separated raster statistics (only the first is used)")
	fs.IntVar(&cfg.DEMDecimation, "dem-decimation", cfg.DEMDecimation, "Keep every Nth point")
	fs.Var(&optionalFloatValue{&cfg.DEMMaxSD}, "dem-maxsd", "Statistical outlier multiplier")
	fs.Var(&optionalFloatValue{&cfg.DEMMaxZ}, "dem-maxz", "Maximum elevation")
	fs.Var(&optionalFloatValue{&cfg.DEMMaxAngle}, "dem-maxangle", "Maximum absolute scan angle")
	fs.Var(&optionalIntValue{&cfg.DEMReturnNum}, "dem-returnnum", "Keep only this return number")
}

// defineGroundFlags registers ground classification parameters.
func defineGroundFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Var(&groundMethodValue{&cfg.GroundMethod}, "ground-method", "Ground classification: pmf | smrf")
	fs.Float64Var(&cfg.Slope, "slope", cfg.Slope, "Ground slope")
	fs.Float64Var(&cfg.CellSize, "cell-size", cfg.CellSize, "Ground cell size")
	fs.Float64Var(&cfg.InitialDistance, "initial-distance", cfg.InitialDistance, "PMF initial distance")
	fs.Var(&optionalFloatValue{&cfg.MaxWindowSize}, "max-window-size", "Maximum window size")
	fs.Var(&optionalFloatValue{&cfg.MaxDistance}, "max-distance", "PMF maximum distance")
	fs.BoolVar(&cfg.Approximate, "approximate", false, "PMF approximate mode")
}

// defineEngineFlags registers engine binaries, subprocess timeout and temp dir.
func defineEngineFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.PDALPath, "pdal", cfg.PDALPath, "pdal executable")
	fs.StringVar(&cfg.OpenSfMPath, "opensfm", cfg.OpenSfMPath, "opensfm executable")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "Per-subprocess timeout (0 = none)")
	fs.StringVar(&cfg.TempDir, "tmp-dir", "", "Directory for temporary pipeline files")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log, --graph.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", "", "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", "", "Same as --log")
	fs.StringVar(&cfg.GraphFile, "graph", "", "Write the stage graph in DOT format")
}

// defineUtilityFlags registers --version and --help (exit after printing).
func defineUtilityFlags(fs *flag.FlagSet, n *negatedFlags) {
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets Name from the single positional arg when not in CheckOnly mode.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	cfg.ProjectPath = NormalizeDirArg(cfg.ProjectPath)
	if cfg.CheckOnly {
		return nil
	}
	if len(args) != 1 {
		return errors.New("need exactly one dataset name")
	}
	cfg.Name = args[0]
	return nil
}

// printUsage writes the help text. Column-aligned for readability.
func printUsage(w io.Writer, version string) {
	const col1 = 30
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "ODM v" + version + " - photogrammetry and point-cloud orchestration"},
		{"", ""},
		{"  odm [OPTIONS] --project-path <dir> <name>", ""},
		{"", ""},
		{"Split/merge", ""},
		{"  --split <n>", "Split when photo count exceeds n (default: 999999)"},
		{"  --split-overlap <m>", "Submodel overlap in meters (default: 150)"},
		{"", ""},
		{"Stages (dataset, split, opensfm, dem)", ""},
		{"  --rerun <stage>", "Rerun only this stage"},
		{"  --rerun-all", "Rerun every stage"},
		{"  --rerun-from <stage>", "Rerun this stage and all later stages"},
		{"  --end-with <stage>", "Stop after this stage (default: dem)"},
		{"", ""},
		{"OpenSfM", ""},
		{"  --resize-to <px>", "Feature extraction size (default: 2048)"},
		{"  --min-num-features <n>", "Minimum features per image (default: 8000)"},
		{"  --max-concurrency <n>", "Processes (default: 4)"},
		{"  --matcher-neighbors <n>", "GPS neighbors (default: 8)"},
		{"  --matcher-distance <m>", "GPS distance (default: 0)"},
		{"", ""},
		{"DEM", ""},
		{"  --dsm, --dtm", "Build surface / terrain models"},
		{"  --dem-resolution <m>", "Cell size (default: 0.1)"},
		{"  --dem-radius <r,...>", "IDW radii (default: 0.56)"},
		{"  --dem-outputs <s,...>", "Statistic, first only (default: idw)"},
		{"  --dem-decimation <n>", "Keep every Nth point (default: 1)"},
		{"  --dem-maxsd <k>", "Outlier multiplier"},
		{"  --dem-maxz <z>", "Maximum elevation"},
		{"  --dem-maxangle <deg>", "Maximum scan angle"},
		{"  --dem-returnnum <n>", "Return number"},
		{"", ""},
		{"Ground classification", ""},
		{"  --ground-method <pmf|smrf>", "Algorithm (default: pmf)"},
		{"  --slope <s>", "Slope (default: 0.15)"},
		{"  --cell-size <c>", "Cell size (default: 1)"},
		{"  --initial-distance <d>", "PMF initial distance (default: 0.7)"},
		{"  --max-window-size <w>", "Maximum window size"},
		{"  --max-distance <d>", "PMF maximum distance"},
		{"  --approximate", "PMF approximate mode"},
		{"", ""},
		{"Engines", ""},
		{"  --pdal <path>", "pdal executable (default: pdal)"},
		{"  --opensfm <path>", "opensfm executable (default: opensfm)"},
		{"  --timeout <dur>", "Per-subprocess timeout, e.g. 2h (default: none)"},
		{"  --tmp-dir <dir>", "Temporary pipeline directory"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  -l, --log <path>", "Append logs to file"},
		{"  --graph <path>", "Write stage graph (DOT)"},
		{"  -c, --check", "System diagnostics (pdal, opensfm)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(w)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(w, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(w, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(w, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters for enum, list and optional fields.

type groundMethodValue struct{ p *GroundMethod }

func (g *groundMethodValue) String() string {
	if g.p == nil {
		return ""
	}
	return string(*g.p)
}

func (g *groundMethodValue) Set(s string) error {
	switch strings.ToLower(s) {
	case "pmf":
		*g.p = GroundPMF
	case "smrf":
		*g.p = GroundSMRF
	default:
		return errors.Errorf("invalid ground method %q (use 'pmf' or 'smrf')", s)
	}
	return nil
}

type floatListValue struct{ p *[]float64 }

func (f *floatListValue) String() string {
	if f.p == nil {
		return ""
	}
	parts := make([]string, len(*f.p))
	for i, v := range *f.p {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (f *floatListValue) Set(s string) error {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return errors.Errorf("invalid number %q in list", part)
		}
		out = append(out, v)
	}
	*f.p = out
	return nil
}

type stringListValue struct{ p *[]string }

func (l *stringListValue) String() string {
	if l.p == nil {
		return ""
	}
	return strings.Join(*l.p, ",")
}

func (l *stringListValue) Set(s string) error {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l.p = out
	return nil
}

type optionalFloatValue struct{ p **float64 }

func (o *optionalFloatValue) String() string {
	if o.p == nil || *o.p == nil {
		return ""
	}
	return strconv.FormatFloat(**o.p, 'f', -1, 64)
}

func (o *optionalFloatValue) Set(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return errors.Errorf("invalid number %q", s)
	}
	*o.p = &v
	return nil
}

type optionalIntValue struct{ p **int }

func (o *optionalIntValue) String() string {
	if o.p == nil || *o.p == nil {
		return ""
	}
	return strconv.Itoa(**o.p)
}

func (o *optionalIntValue) Set(s string) error {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.Errorf("%q must be a whole number", s)
	}
	*o.p = &v
	return nil
}
