package splitmerge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peddyhh/ODM/internal/opensfm"
	"github.com/peddyhh/ODM/internal/photo"
	"github.com/peddyhh/ODM/internal/system"
	"github.com/peddyhh/ODM/internal/types"
)

type fakeEngine struct {
	submodels int
	setup     []opensfm.SetupOptions
	matched   []string
	created   int
	failMatch bool
}

func (e *fakeEngine) Setup(opts opensfm.SetupOptions) error {
	e.setup = append(e.setup, opts)
	if err := os.MkdirAll(opts.ProjectDir, 0o755); err != nil {
		return err
	}
	return opensfm.WriteConfig(filepath.Join(opts.ProjectDir, "config.yaml"), opts.AppendConfig)
}

func (e *fakeEngine) FeatureMatching(_ context.Context, projectPath string, _ bool) error {
	if e.failMatch {
		return errors.New("exit status 1")
	}
	e.matched = append(e.matched, projectPath)
	return nil
}

func (e *fakeEngine) CreateSubmodels(_ context.Context, projectPath string) error {
	e.created++
	for i := 0; i < e.submodels; i++ {
		dir := filepath.Join(projectPath, "..", "submodels", fmt.Sprintf("submodel_%04d", i), "opensfm")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

type fakeRunner struct {
	commands []system.Command
	failOn   int // 1-based call that fails; 0 never fails
}

func (r *fakeRunner) Run(_ context.Context, cmd system.Command, _ io.Writer) (string, error) {
	r.commands = append(r.commands, cmd)
	if r.failOn == len(r.commands) {
		return "", errors.New("exit status 2")
	}
	return "", nil
}

type recordingLogger struct {
	infos []string
	warns []string
}

func (l *recordingLogger) Info(format string, args ...interface{}) {
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warn(format string, args ...interface{}) {
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debug(bool, string, ...interface{}) {}

func photos(n int) []photo.Photo {
	ps := make([]photo.Photo, n)
	for i := range ps {
		ps[i] = photo.Photo{Filename: fmt.Sprintf("IMG_%04d.JPG", i)}
	}
	return ps
}

func newTestOrchestrator(engine *fakeEngine, runner *fakeRunner, log *recordingLogger) *Orchestrator {
	return &Orchestrator{
		Split:        3,
		SplitOverlap: 75,
		Args:         []string{"--project-path", "/data", "--split", "3", "--dsm", "field"},
		Executable:   "/usr/local/bin/odm",
		Engine:       engine,
		Runner:       runner,
		Log:          log,
		Stdout:       io.Discard,
	}
}

func newOutputs(t *testing.T, n int) types.Outputs {
	t.Helper()
	return types.Outputs{
		Tree:           types.NewTree(t.TempDir(), "field"),
		Reconstruction: &types.Reconstruction{Photos: photos(n)},
	}
}

func TestLarge(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		threshold int
		want      bool
	}{
		{"below", 2, 3, false},
		{"equal is not large", 3, 3, false},
		{"one over", 4, 3, true},
		{"default threshold", 1000, 999999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Large(tt.count, tt.threshold))
		})
	}
}

func TestProcess_NormalDataset(t *testing.T) {
	engine := &fakeEngine{}
	runner := &fakeRunner{}
	o := newTestOrchestrator(engine, runner, &recordingLogger{})

	in := newOutputs(t, 3)
	out, err := o.Process(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, out.Large)
	assert.Empty(t, out.Submodels)
	assert.Empty(t, engine.setup)
	assert.Empty(t, runner.commands)
	assert.Equal(t, Done, o.Phase())
	assert.Equal(t, []Phase{Unpartitioned, PartitionDecided}, o.m.history)
}

func TestProcess_LargeDataset(t *testing.T) {
	engine := &fakeEngine{submodels: 2}
	runner := &fakeRunner{}
	o := newTestOrchestrator(engine, runner, &recordingLogger{})

	in := newOutputs(t, 4)
	out, err := o.Process(context.Background(), in)
	require.NoError(t, err)
	tree := in.Tree

	assert.True(t, out.Large)
	require.Len(t, engine.setup, 1)
	assert.Equal(t, []string{
		"submodels_relpath: ../submodels/opensfm",
		"submodel_relpath_template: ../submodels/submodel_%04d/opensfm",
		"submodel_images_relpath_template: ../submodels/submodel_%04d/images",
		"submodel_size: 3",
		"submodel_overlap: 75",
	}, engine.setup[0].AppendConfig)
	assert.Equal(t, tree.OpenSfM(), engine.setup[0].ProjectDir)
	assert.Equal(t, []string{tree.OpenSfM()}, engine.matched)
	assert.Equal(t, 1, engine.created)

	require.Len(t, out.Submodels, 2)
	for i, sm := range out.Submodels {
		name := fmt.Sprintf("submodel_%04d", i)
		assert.Equal(t, name, sm.Name)
		assert.Equal(t, filepath.Join(tree.Submodels(), name, "opensfm"), sm.Path)
		assert.True(t, sm.MatchingDone)
		assert.True(t, sm.Processed)
		assert.False(t, sm.Aligned)
		assert.True(t, opensfm.FeatureMatchingDone(sm.Path))

		cmd := runner.commands[i]
		assert.Equal(t, "/usr/local/bin/odm", cmd.Name)
		assert.Equal(t, []string{"--dsm", "--project-path", tree.Submodels(), name}, cmd.Args)
	}

	assert.Equal(t, Done, o.Phase())
	assert.Equal(t, []Phase{
		Unpartitioned, PartitionDecided, FeatureMatching, SubmodelCreation, PerSubmodelProcessing,
	}, o.m.history)
}

func TestProcess_ReusesSubmodelsWithoutRerun(t *testing.T) {
	engine := &fakeEngine{submodels: 1}
	log := &recordingLogger{}
	o := newTestOrchestrator(engine, &fakeRunner{}, log)

	in := newOutputs(t, 4)
	existing := filepath.Join(in.Tree.Submodels(), "submodel_0000", "opensfm")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	out, err := o.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 0, engine.created)
	assert.Contains(t, log.warns, "Submodels directory already exist at: "+in.Tree.Submodels())
	assert.Len(t, out.Submodels, 1)
}

func TestProcess_RerunRecreatesSubmodels(t *testing.T) {
	engine := &fakeEngine{submodels: 1}
	log := &recordingLogger{}
	o := newTestOrchestrator(engine, &fakeRunner{}, log)

	in := newOutputs(t, 4)
	in.Rerun = true
	stale := filepath.Join(in.Tree.Submodels(), "submodel_0007")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	_, err := o.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, engine.created)
	assert.NoDirExists(t, stale)
	assert.Contains(t, log.warns, "Removing existing submodels directory: "+in.Tree.Submodels())
	assert.True(t, engine.setup[0].Rerun)
}

func TestProcess_SubmodelFailureAborts(t *testing.T) {
	engine := &fakeEngine{submodels: 3}
	runner := &fakeRunner{failOn: 2}
	o := newTestOrchestrator(engine, runner, &recordingLogger{})

	out, err := o.Process(context.Background(), newOutputs(t, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submodel_0001")

	assert.Len(t, runner.commands, 2, "no submodel should run after a failure")
	require.Len(t, out.Submodels, 1)
	assert.True(t, out.Submodels[0].Processed)
	assert.Equal(t, PerSubmodelProcessing, o.Phase())
}

func TestProcess_FeatureMatchingFailure(t *testing.T) {
	engine := &fakeEngine{submodels: 1, failMatch: true}
	runner := &fakeRunner{}
	o := newTestOrchestrator(engine, runner, &recordingLogger{})

	_, err := o.Process(context.Background(), newOutputs(t, 4))
	require.Error(t, err)
	assert.Equal(t, 0, engine.created)
	assert.Empty(t, runner.commands)
	assert.Equal(t, FeatureMatching, o.Phase())
}

func TestTransition(t *testing.T) {
	m := machine{}
	require.NoError(t, m.transition(PartitionDecided))
	assert.Error(t, m.transition(SubmodelCreation))
	assert.Equal(t, PartitionDecided, m.phase)

	for _, p := range []Phase{FeatureMatching, SubmodelCreation, PerSubmodelProcessing, Alignment, Merge, Done} {
		require.NoError(t, m.transition(p), "to %s", p)
	}
	assert.Error(t, m.transition(Unpartitioned))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "per-submodel-processing", PerSubmodelProcessing.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}
