package workflow

import (
	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/dem"
	"github.com/peddyhh/ODM/internal/opensfm"
	"github.com/peddyhh/ODM/internal/pdal"
	"github.com/peddyhh/ODM/internal/splitmerge"
	"github.com/peddyhh/ODM/internal/system"
)

// Build wires the standard dataset -> split -> opensfm -> dem workflow.
// runner executes engine commands; submodels is used for the recursive
// submodel runs, which must not inherit the per-command timeout.
func Build(cfg *config.Config, runner, submodels system.Runner, log Logger) (*Workflow, error) {
	engine := opensfm.New(cfg, runner, log)
	orchestrator, err := splitmerge.New(cfg, engine, submodels, log)
	if err != nil {
		return nil, err
	}
	gen := dem.New(cfg, pdal.NewExecutor(cfg, runner, log), log)

	w := New(log)
	stages := []struct {
		stage Stage
		after []string
	}{
		{&DatasetStage{Log: log}, nil},
		{&SplitStage{Orchestrator: orchestrator}, []string{config.StageDataset}},
		{&OpenSfMStage{Engine: engine, Log: log}, []string{config.StageSplit}},
		{&DEMStage{Generator: gen, DSM: cfg.DSM, DTM: cfg.DTM, Log: log}, []string{config.StageOpenSfM}},
	}
	for _, s := range stages {
		if err := w.Add(s.stage, s.after...); err != nil {
			return nil, err
		}
	}
	return w, nil
}
