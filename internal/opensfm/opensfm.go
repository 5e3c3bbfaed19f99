// Package opensfm drives the OpenSfM engine: project setup, feature
// matching, submodel creation and reconstruction. Each operation is a
// blocking "opensfm <command> <project>" subprocess; progress markers on
// disk make reruns idempotent.
package opensfm

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/photo"
	"github.com/peddyhh/ODM/internal/system"
)

const (
	configFile        = "config.yaml"
	imageListFile     = "image_list.txt"
	gcpFile           = "gcp_list.txt"
	matchingDoneFile  = "matching_done.txt"
	reconstructionOut = "reconstruction.json"
)

// Logger is the logging surface OpenSfM needs.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Tuning holds the engine options written into every config.yaml.
type Tuning struct {
	ResizeTo         int
	MinNumFeatures   int
	MaxConcurrency   int
	MatcherNeighbors int
	MatcherDistance  float64
}

// OpenSfM runs the opensfm binary.
type OpenSfM struct {
	Binary  string
	Verbose bool
	Tuning  Tuning
	Runner  system.Runner
	Log     Logger
	// Stdout receives engine output in verbose mode. Defaults to os.Stdout.
	Stdout io.Writer
}

// New builds an OpenSfM driver from cfg.
func New(cfg *config.Config, runner system.Runner, log Logger) *OpenSfM {
	return &OpenSfM{
		Binary:  cfg.OpenSfMPath,
		Verbose: cfg.Verbose,
		Tuning: Tuning{
			ResizeTo:         cfg.ResizeTo,
			MinNumFeatures:   cfg.MinNumFeatures,
			MaxConcurrency:   cfg.MaxConcurrency,
			MatcherNeighbors: cfg.MatcherNeighbors,
			MatcherDistance:  cfg.MatcherDistance,
		},
		Runner: runner,
		Log:    log,
	}
}

// Run executes "opensfm <command> <projectPath>" and waits for it.
func (o *OpenSfM) Run(ctx context.Context, command, projectPath string) error {
	cmd := system.Command{Name: o.Binary, Args: []string{command, projectPath}}
	o.Log.Debug(o.Verbose, "%s", cmd)

	var stream io.Writer
	if o.Verbose {
		stream = o.Stdout
		if stream == nil {
			stream = os.Stdout
		}
	}
	_, err := o.Runner.Run(ctx, cmd, stream)
	return err
}

// SetupOptions describes a project to prepare.
type SetupOptions struct {
	ImagesDir  string
	ProjectDir string
	Photos     []photo.Photo
	// GCPPath is copied into the project when the file exists.
	GCPPath string
	// AppendConfig are extra "key: value" directives; a key repeated here
	// overrides the base value.
	AppendConfig []string
	Rerun        bool
}

// Setup creates the project directory, its image list and config.yaml. A
// rerun wipes the directory first. When the image list already exists and
// no rerun is requested, setup is skipped with a warning.
func (o *OpenSfM) Setup(opts SetupOptions) error {
	if opts.Rerun && dirExists(opts.ProjectDir) {
		if err := os.RemoveAll(opts.ProjectDir); err != nil {
			return errors.Wrapf(err, "unable to remove %s", opts.ProjectDir)
		}
	}
	if err := os.MkdirAll(opts.ProjectDir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create %s", opts.ProjectDir)
	}

	listPath := filepath.Join(opts.ProjectDir, imageListFile)
	if fileExists(listPath) && !opts.Rerun {
		o.Log.Warn("%s already exists, not rerunning OpenSfM setup", listPath)
		return nil
	}

	if err := writeImageList(listPath, opts.ImagesDir, opts.Photos); err != nil {
		return err
	}

	lines := o.baseConfig()
	if opts.GCPPath != "" && fileExists(opts.GCPPath) {
		if err := copyFile(opts.GCPPath, filepath.Join(opts.ProjectDir, gcpFile)); err != nil {
			return err
		}
		lines = append(lines, "bundle_use_gcp: yes")
	}
	lines = append(lines, opts.AppendConfig...)

	return WriteConfig(filepath.Join(opts.ProjectDir, configFile), lines)
}

func (o *OpenSfM) baseConfig() []string {
	t := o.Tuning
	lines := []string{
		"use_exif_size: no",
		"feature_process_size: " + strconv.Itoa(t.ResizeTo),
		"feature_min_frames: " + strconv.Itoa(t.MinNumFeatures),
		"processes: " + strconv.Itoa(t.MaxConcurrency),
		"matching_gps_neighbors: " + strconv.Itoa(t.MatcherNeighbors),
		"matching_gps_distance: " + strconv.FormatFloat(t.MatcherDistance, 'f', -1, 64),
		"undistorted_image_format: png",
	}
	return lines
}

func writeImageList(path, imagesDir string, photos []photo.Photo) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer f.Close()
	for _, p := range photos {
		if _, err := io.WriteString(f, filepath.Join(imagesDir, p.Filename)+"\n"); err != nil {
			return errors.Wrapf(err, "unable to write %s", path)
		}
	}
	return f.Close()
}

// FeatureMatching extracts metadata, detects and matches features, then
// writes the matching-done marker. It is skipped with a warning when the
// marker exists and no rerun is requested.
func (o *OpenSfM) FeatureMatching(ctx context.Context, projectPath string, rerun bool) error {
	marker := filepath.Join(projectPath, matchingDoneFile)
	if fileExists(marker) && !rerun {
		o.Log.Warn("Found a feature matching done progress file in: %s", marker)
		return nil
	}

	for _, command := range []string{"extract_metadata", "detect_features", "match_features"} {
		if err := o.Run(ctx, command, projectPath); err != nil {
			return err
		}
	}
	return MarkFeatureMatchingDone(projectPath)
}

// MarkFeatureMatchingDone writes the marker that makes FeatureMatching a
// no-op for projectPath.
func MarkFeatureMatchingDone(projectPath string) error {
	marker := filepath.Join(projectPath, matchingDoneFile)
	if err := os.WriteFile(marker, []byte("Matching done!\n"), 0o644); err != nil {
		return errors.Wrapf(err, "unable to write %s", marker)
	}
	return nil
}

// FeatureMatchingDone reports whether the marker exists in projectPath.
func FeatureMatchingDone(projectPath string) bool {
	return fileExists(filepath.Join(projectPath, matchingDoneFile))
}

// CreateSubmodels partitions the project into submodels using the layout
// directives of its config.yaml.
func (o *OpenSfM) CreateSubmodels(ctx context.Context, projectPath string) error {
	return o.Run(ctx, "create_submodels", projectPath)
}

// Reconstruct builds tracks and the sparse reconstruction. It is skipped
// with a warning when reconstruction.json exists and no rerun is requested.
// It returns the reconstruction path.
func (o *OpenSfM) Reconstruct(ctx context.Context, projectPath string, rerun bool) (string, error) {
	out := ReconstructionPath(projectPath)
	if fileExists(out) && !rerun {
		o.Log.Warn("Found a valid OpenSfM reconstruction file in: %s", out)
		return out, nil
	}
	for _, command := range []string{"create_tracks", "reconstruct"} {
		if err := o.Run(ctx, command, projectPath); err != nil {
			return "", err
		}
	}
	return out, nil
}

// ReconstructionPath is where OpenSfM writes the reconstruction of projectPath.
func ReconstructionPath(projectPath string) string {
	return filepath.Join(projectPath, reconstructionOut)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "unable to copy %s", src)
	}
	return out.Close()
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
