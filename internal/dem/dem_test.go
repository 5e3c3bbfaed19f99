package dem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/pdal"
	"github.com/peddyhh/ODM/internal/system"
)

// fakeRunner records commands and decodes pipeline files while they exist.
type fakeRunner struct {
	mu        sync.Mutex
	commands  []system.Command
	pipelines [][]map[string]interface{}
	failOn    string
}

func (r *fakeRunner) Run(_ context.Context, cmd system.Command, _ io.Writer) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	if cmd.Args[0] == r.failOn {
		return "", errors.New("exit status 1")
	}
	if cmd.Args[0] == "pipeline" {
		data, err := os.ReadFile(cmd.Args[2])
		if err != nil {
			return "", err
		}
		var doc struct {
			Pipeline []map[string]interface{} `json:"pipeline"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", err
		}
		r.pipelines = append(r.pipelines, doc.Pipeline)
	}
	return "", nil
}

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *recordingLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warn(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debug(bool, string, ...interface{}) {}

func newTestGenerator(t *testing.T, runner *fakeRunner, mutate func(*config.Config)) (*Generator, *recordingLogger) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TempDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	log := &recordingLogger{}
	exec := pdal.NewExecutor(&cfg, runner, log)
	return New(&cfg, exec, log), log
}

func types(stages []map[string]interface{}) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i], _ = s["type"].(string)
	}
	return out
}

func TestCreate_SingleRadius(t *testing.T) {
	runner := &fakeRunner{}
	g, _ := newTestGenerator(t, runner, nil)
	maxZ := 100.0
	ground := GroundClass

	rasters, err := g.Create(context.Background(), Request{
		Inputs:         []string{"/data/cloud.las"},
		Output:         "/data/dem/dtm",
		Radius:         []float64{0.56},
		Resolution:     0.1,
		Outputs:        []string{"idw"},
		Decimation:     4,
		Filters:        pdal.FilterOptions{MaxZ: &maxZ},
		Classification: &ground,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/dem/dtm.idw.tif"}, rasters)

	require.Len(t, runner.pipelines, 1)
	stages := runner.pipelines[0]
	want := []string{"readers.las", "filters.range", "filters.decimation", "filters.range", "writers.gdal"}
	if diff := cmp.Diff(want, types(stages)); diff != "" {
		t.Errorf("stage types mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Classification[2:2]", stages[1]["limits"])
	assert.Equal(t, "Z[:100]", stages[3]["limits"])
}

func TestCreate_PerRadius(t *testing.T) {
	runner := &fakeRunner{}
	g, _ := newTestGenerator(t, runner, nil)

	rasters, err := g.Create(context.Background(), Request{
		Inputs:  []string{"/data/cloud.las"},
		Output:  "/data/dem/dsm",
		Radius:  []float64{0.5, 1},
		Outputs: []string{"idw"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/dem/dsm_r0.5.idw.tif", "/data/dem/dsm_r1.idw.tif"}, rasters)
	assert.Len(t, runner.pipelines, 2)
}

func TestCreate_LogsDroppedOutputs(t *testing.T) {
	g, log := newTestGenerator(t, &fakeRunner{}, nil)

	_, err := g.Create(context.Background(), Request{
		Inputs:  []string{"/data/cloud.las"},
		Output:  "/data/dem/dsm",
		Radius:  []float64{1},
		Outputs: []string{"max", "idw"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"More than 1 output, will only create max"}, log.warns)
}

func TestCreate_Errors(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeRunner{}, nil)

	_, err := g.Create(context.Background(), Request{Output: "x", Radius: []float64{1}, Outputs: []string{"idw"}})
	assert.ErrorIs(t, err, pdal.ErrNoReaders)

	_, err = g.Create(context.Background(), Request{Inputs: []string{"a.las"}, Output: "x", Outputs: []string{"idw"}})
	assert.Error(t, err)
}

func TestGenerate_DSMAndDTM(t *testing.T) {
	runner := &fakeRunner{}
	g, _ := newTestGenerator(t, runner, func(c *config.Config) {
		c.GroundMethod = config.GroundSMRF
	})
	outDir := filepath.Join(t.TempDir(), "odm_dem")

	rasters, err := g.Generate(context.Background(), Options{
		Input:  "/data/cloud.las",
		OutDir: outDir,
		DSM:    true,
		DTM:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "dsm.idw.tif"),
		filepath.Join(outDir, "dtm.idw.tif"),
	}, rasters)
	assert.DirExists(t, outDir)

	var ground, pipelines int
	for _, c := range runner.commands {
		switch c.Args[0] {
		case "translate":
			ground++
			assert.Equal(t, filepath.Join(outDir, "classified.las"), c.Args[4])
		case "pipeline":
			pipelines++
		}
	}
	assert.Equal(t, 1, ground)
	assert.Equal(t, 2, pipelines)
}

func TestGenerate_GroundFailureStopsDTM(t *testing.T) {
	runner := &fakeRunner{failOn: "ground"}
	g, _ := newTestGenerator(t, runner, nil)

	_, err := g.Generate(context.Background(), Options{
		Input:  "/data/cloud.las",
		OutDir: t.TempDir(),
		DTM:    true,
	})
	require.Error(t, err)
	assert.Len(t, runner.commands, 1)
	assert.Empty(t, runner.pipelines)
}

func TestGenerate_Nothing(t *testing.T) {
	runner := &fakeRunner{}
	g, _ := newTestGenerator(t, runner, nil)

	rasters, err := g.Generate(context.Background(), Options{Input: "x", OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Nil(t, rasters)
	assert.Empty(t, runner.commands)
}
