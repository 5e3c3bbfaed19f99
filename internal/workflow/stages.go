package workflow

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/dem"
	"github.com/peddyhh/ODM/internal/display"
	"github.com/peddyhh/ODM/internal/opensfm"
	"github.com/peddyhh/ODM/internal/photo"
	"github.com/peddyhh/ODM/internal/types"
)

// DatasetStage discovers the input photos.
type DatasetStage struct {
	Log Logger
}

func (s *DatasetStage) Name() string { return config.StageDataset }

func (s *DatasetStage) Process(_ context.Context, in types.Outputs) (types.Outputs, error) {
	dir := in.Tree.DatasetRaw()
	photos, err := photo.Discover(dir)
	if err != nil {
		return in, err
	}
	if len(photos) == 0 {
		return in, errors.Errorf("no images found in %s", dir)
	}
	s.Log.Info("Found %d usable images", len(photos))

	in.Reconstruction = &types.Reconstruction{Photos: photos}
	return in, nil
}

// SplitStage partitions large datasets; see package splitmerge.
type SplitStage struct {
	Orchestrator interface {
		Process(ctx context.Context, in types.Outputs) (types.Outputs, error)
	}
}

func (s *SplitStage) Name() string { return config.StageSplit }

func (s *SplitStage) Process(ctx context.Context, in types.Outputs) (types.Outputs, error) {
	return s.Orchestrator.Process(ctx, in)
}

// Reconstructor is the engine surface the opensfm stage drives.
type Reconstructor interface {
	Setup(opts opensfm.SetupOptions) error
	FeatureMatching(ctx context.Context, projectPath string, rerun bool) error
	Reconstruct(ctx context.Context, projectPath string, rerun bool) (string, error)
}

// OpenSfMStage reconstructs a dataset that was not split. A split dataset
// is reconstructed per submodel by the recursive runs instead.
type OpenSfMStage struct {
	Engine Reconstructor
	Log    Logger
}

func (s *OpenSfMStage) Name() string { return config.StageOpenSfM }

func (s *OpenSfMStage) Process(ctx context.Context, in types.Outputs) (types.Outputs, error) {
	if in.Large {
		s.Log.Info("Submodels were reconstructed individually, skipping whole-set reconstruction")
		return in, nil
	}
	if in.Reconstruction == nil {
		return in, errors.New("no photos to reconstruct")
	}

	project := in.Tree.OpenSfM()
	err := s.Engine.Setup(opensfm.SetupOptions{
		ImagesDir:  in.Tree.DatasetRaw(),
		ProjectDir: project,
		Photos:     in.Reconstruction.Photos,
		GCPPath:    in.Tree.GCP(),
		Rerun:      in.Rerun,
	})
	if err != nil {
		return in, errors.Wrap(err, "unable to set up OpenSfM")
	}
	if err := s.Engine.FeatureMatching(ctx, project, in.Rerun); err != nil {
		return in, errors.Wrap(err, "feature matching failed")
	}
	file, err := s.Engine.Reconstruct(ctx, project, in.Rerun)
	if err != nil {
		return in, errors.Wrap(err, "reconstruction failed")
	}

	rec := *in.Reconstruction
	rec.File = file
	in.Reconstruction = &rec
	return in, nil
}

// DEMGenerator builds elevation models from a point cloud.
type DEMGenerator interface {
	Generate(ctx context.Context, opts dem.Options) ([]string, error)
}

// DEMStage builds the DSM and DTM from the georeferenced point cloud.
type DEMStage struct {
	Generator DEMGenerator
	DSM, DTM  bool
	Log       Logger
}

func (s *DEMStage) Name() string { return config.StageDEM }

func (s *DEMStage) Process(ctx context.Context, in types.Outputs) (types.Outputs, error) {
	if !s.DSM && !s.DTM {
		s.Log.Info("DEM generation not requested")
		return in, nil
	}
	if in.Large {
		s.Log.Warn("Submodels are not merged yet, skipping DEM generation for the split dataset")
		return in, nil
	}

	cloud := in.Tree.GeoreferencedModel()
	if _, err := os.Stat(cloud); err != nil {
		s.Log.Warn("No georeferenced point cloud at %s, skipping DEM generation", cloud)
		return in, nil
	}

	rasters, err := s.Generator.Generate(ctx, dem.Options{
		Input:  cloud,
		OutDir: in.Tree.DEM(),
		DSM:    s.DSM,
		DTM:    s.DTM,
	})
	in.Rasters = append(in.Rasters, rasters...)
	if err != nil {
		return in, err
	}
	for _, r := range rasters {
		if fi, err := os.Stat(r); err == nil {
			s.Log.Info("Created %s (%s)", r, display.FormatBytes(fi.Size()))
		} else {
			s.Log.Info("Created %s", r)
		}
	}
	return in, nil
}
