// Package splitmerge partitions large datasets into overlapping submodels
// and runs the full workflow on each of them.
//
// The orchestrator is a linear state machine: decide, match features once
// for the whole set, create submodels, then process every submodel by
// re-invoking this program. Alignment and merge are declared phases that
// are not executed yet.
package splitmerge

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/opensfm"
	"github.com/peddyhh/ODM/internal/system"
	"github.com/peddyhh/ODM/internal/types"
)

// Engine is the part of the reconstruction engine the orchestrator drives.
type Engine interface {
	Setup(opts opensfm.SetupOptions) error
	FeatureMatching(ctx context.Context, projectPath string, rerun bool) error
	CreateSubmodels(ctx context.Context, projectPath string) error
}

// Logger is the logging surface the orchestrator needs.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Large reports whether photoCount calls for partitioning. The comparison
// is strict: a dataset of exactly threshold photos is processed whole.
func Large(photoCount, threshold int) bool {
	return photoCount > threshold
}

// Orchestrator runs the split phase of the workflow.
type Orchestrator struct {
	Split        int
	SplitOverlap float64
	Verbose      bool

	// Args are the parent's command line arguments, without the program name.
	Args []string
	// Executable is the program re-invoked for every submodel.
	Executable string

	Engine Engine
	Runner system.Runner
	Log    Logger
	// Stdout receives submodel output. Defaults to os.Stdout.
	Stdout io.Writer

	m machine
}

// New builds an Orchestrator from cfg that re-invokes the running binary.
func New(cfg *config.Config, engine Engine, runner system.Runner, log Logger) (*Orchestrator, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "unable to locate executable")
	}
	return &Orchestrator{
		Split:        cfg.Split,
		SplitOverlap: cfg.SplitOverlap,
		Verbose:      cfg.Verbose,
		Args:         cfg.Args,
		Executable:   exe,
		Engine:       engine,
		Runner:       runner,
		Log:          log,
	}, nil
}

// Phase returns the phase the last Process call reached.
func (o *Orchestrator) Phase() Phase {
	return o.m.phase
}

// layoutConfig returns the OpenSfM directives that describe the submodel
// layout relative to the project's opensfm directory.
func (o *Orchestrator) layoutConfig() []string {
	return []string{
		"submodels_relpath: ../submodels/opensfm",
		"submodel_relpath_template: ../submodels/submodel_%04d/opensfm",
		"submodel_images_relpath_template: ../submodels/submodel_%04d/images",
		"submodel_size: " + strconv.Itoa(o.Split),
		"submodel_overlap: " + strconv.FormatFloat(o.SplitOverlap, 'f', -1, 64),
	}
}

// Process decides whether in is large and, if so, partitions it and runs
// every submodel to completion in discovery order. The first failure aborts
// the remaining submodels.
func (o *Orchestrator) Process(ctx context.Context, in types.Outputs) (types.Outputs, error) {
	o.m = machine{}
	out := in

	var photos int
	if in.Reconstruction != nil {
		photos = len(in.Reconstruction.Photos)
	}
	out.Large = Large(photos, o.Split)
	if err := o.m.transition(PartitionDecided); err != nil {
		return out, err
	}

	if !out.Large {
		o.Log.Info("Normal dataset, will process all at once.")
		return out, o.m.transition(Done)
	}

	o.Log.Info("Large dataset detected (%d photos) and split set at %d. Preparing split merge.", photos, o.Split)
	tree := in.Tree

	err := o.Engine.Setup(opensfm.SetupOptions{
		ImagesDir:    tree.DatasetRaw(),
		ProjectDir:   tree.OpenSfM(),
		Photos:       in.Reconstruction.Photos,
		GCPPath:      tree.GCP(),
		AppendConfig: o.layoutConfig(),
		Rerun:        in.Rerun,
	})
	if err != nil {
		return out, errors.Wrap(err, "unable to set up OpenSfM")
	}

	if err := o.m.transition(FeatureMatching); err != nil {
		return out, err
	}
	if err := o.Engine.FeatureMatching(ctx, tree.OpenSfM(), in.Rerun); err != nil {
		return out, errors.Wrap(err, "feature matching failed")
	}

	if err := o.m.transition(SubmodelCreation); err != nil {
		return out, err
	}
	if err := o.createSubmodels(ctx, tree, in.Rerun); err != nil {
		return out, err
	}

	if err := o.m.transition(PerSubmodelProcessing); err != nil {
		return out, err
	}
	meta, err := opensfm.LoadMetaDataSet(tree.OpenSfM())
	if err != nil {
		return out, err
	}
	paths := meta.SubmodelPaths()
	o.Log.Info("Found %d submodels", len(paths))

	out.Submodels = make([]types.Submodel, 0, len(paths))
	for _, p := range paths {
		sm, err := o.processSubmodel(ctx, tree, p)
		if err != nil {
			return out, err
		}
		out.Submodels = append(out.Submodels, sm)
	}

	return out, o.m.transition(Done)
}

func (o *Orchestrator) createSubmodels(ctx context.Context, tree *types.Tree, rerun bool) error {
	dir := tree.Submodels()
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		if !rerun {
			o.Log.Warn("Submodels directory already exist at: %s", dir)
			return nil
		}
		o.Log.Warn("Removing existing submodels directory: %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "unable to remove %s", dir)
		}
	}
	if err := o.Engine.CreateSubmodels(ctx, tree.OpenSfM()); err != nil {
		return errors.Wrap(err, "unable to create submodels")
	}
	return nil
}

// processSubmodel marks feature matching as done for the submodel at path
// (matches were computed for the whole set) and runs the workflow on it.
func (o *Orchestrator) processSubmodel(ctx context.Context, tree *types.Tree, path string) (types.Submodel, error) {
	sm := types.Submodel{
		Name: filepath.Base(filepath.Dir(path)),
		Path: path,
	}

	if err := opensfm.MarkFeatureMatchingDone(path); err != nil {
		return sm, err
	}
	sm.MatchingDone = true

	cmd := system.Command{
		Name: o.Executable,
		Args: SubmodelArgv(o.Args, tree.Submodels(), sm.Name),
	}
	o.Log.Info("Processing %s", sm.Name)
	o.Log.Debug(o.Verbose, "%s", cmd)

	if _, err := o.Runner.Run(ctx, cmd, o.stdout()); err != nil {
		return sm, errors.Wrapf(err, "submodel %s failed", sm.Name)
	}
	sm.Processed = true
	sm.Reconstruction = opensfm.ReconstructionPath(path)
	return sm, nil
}

func (o *Orchestrator) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}
