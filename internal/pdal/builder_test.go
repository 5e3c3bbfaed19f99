package pdal

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_StageOrder(t *testing.T) {
	p, err := NewPointWriter("out.las").
		Decimation(2).                          // F1
		Classification(2, ClassEquals).         // F2
		Crop("POLYGON ((0 0, 1 0, 1 1, 0 0))"). // F3
		Readers("r1.las", "r2.las", "r3.las")
	require.NoError(t, err)

	want := []string{
		"filters.merge",
		"readers.las", "readers.las", "readers.las",
		"filters.crop", "filters.range", "filters.decimation",
		"writers.las",
	}
	if diff := cmp.Diff(want, p.Types()); diff != "" {
		t.Errorf("stage types mismatch (-want +got):\n%s", diff)
	}

	stages := p.Stages()
	var readers []string
	for _, s := range stages {
		if r, ok := s.(PointReader); ok {
			readers = append(readers, filepath.Base(r.Filename))
		}
	}
	assert.Equal(t, []string{"r3.las", "r2.las", "r1.las"}, readers)
	assert.Equal(t, KindWriter, p.Writer().Kind())
}

func TestBuilder_SingleReaderHasNoMerge(t *testing.T) {
	p, err := NewPointWriter("out.las").MaxZ(10).Readers("only.las")
	require.NoError(t, err)

	assert.Equal(t, []string{"readers.las", "filters.range", "writers.las"}, p.Types())
}

func TestBuilder_ReaderPathsAreAbsolute(t *testing.T) {
	p, err := NewPointWriter("out.las").Readers("relative/cloud.las")
	require.NoError(t, err)

	r := p.Stages()[0].(PointReader)
	assert.True(t, filepath.IsAbs(r.Filename), r.Filename)
	assert.Equal(t, "cloud.las", filepath.Base(r.Filename))
}

func TestBuilder_NoReaders(t *testing.T) {
	_, err := NewPointWriter("out.las").Readers()
	assert.ErrorIs(t, err, ErrNoReaders)
}

func TestBuilder_RangeLimits(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		want  string
	}{
		{"classification equals", func(b *Builder) *Builder { return b.Classification(6, ClassEquals) }, "Classification[6:6]"},
		{"classification max", func(b *Builder) *Builder { return b.Classification(6, ClassMax) }, "Classification[:6]"},
		{"max z", func(b *Builder) *Builder { return b.MaxZ(120.5) }, "Z[:120.5]"},
		{"scan angle", func(b *Builder) *Builder { return b.MaxAngle(15) }, "ScanAngleRank[-15:15]"},
		{"scan edge", func(b *Builder) *Builder { return b.ScanEdge(0) }, "EdgeOfFlightLine[0:0]"},
		{"return number", func(b *Builder) *Builder { return b.ReturnNum(1) }, "ReturnNum[1:1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.build(NewPointWriter("out.las")).Readers("in.las")
			require.NoError(t, err)
			f, ok := p.Stages()[1].(RangeFilter)
			require.True(t, ok, "expected a range filter, got %T", p.Stages()[1])
			assert.Equal(t, tt.want, f.Limits)
		})
	}
}

func TestBuilder_Filters_SkipsUnset(t *testing.T) {
	p, err := NewPointWriter("out.las").
		Filters(FilterOptions{MaxZ: floatPtr(100), ReturnNum: intPtr(1)}).
		Readers("in.las")
	require.NoError(t, err)

	// Filters are applied MaxSD, MaxZ, MaxAngle, ReturnNum, so the
	// return-number filter ends up nearest the reader.
	stages := p.Stages()
	require.Len(t, stages, 4)
	assert.Equal(t, RangeFilter{Limits: "ReturnNum[1:1]"}, stages[1])
	assert.Equal(t, RangeFilter{Limits: "Z[:100]"}, stages[2])
}

func TestBuilder_Filters_All(t *testing.T) {
	p, err := NewPointWriter("out.las").
		Filters(FilterOptions{
			MaxSD:     floatPtr(2.5),
			MaxZ:      floatPtr(100),
			MaxAngle:  floatPtr(20),
			ReturnNum: intPtr(1),
		}).
		Readers("in.las")
	require.NoError(t, err)

	stages := p.Stages()
	require.Len(t, stages, 6)
	assert.Equal(t, OutlierFilter{Method: "statistical", MeanK: DefaultMeanK, Multiplier: 2.5}, stages[4])
}

func TestBuilder_Filters_None(t *testing.T) {
	p, err := NewPointWriter("out.las").Filters(FilterOptions{}).Readers("in.las")
	require.NoError(t, err)
	assert.Equal(t, []string{"readers.las", "writers.las"}, p.Types())
}

func TestNewRasterWriter_KeepsFirstOutput(t *testing.T) {
	b := NewRasterWriter("/out/dsm", 0.56, 0.1, "idw", "max")
	p, err := b.Readers("in.las")
	require.NoError(t, err)

	w, ok := p.Writer().(RasterWriter)
	require.True(t, ok)
	assert.Equal(t, "idw", w.OutputType)
	assert.Equal(t, "/out/dsm.idw.tif", w.Filename)
	assert.Equal(t, 0.56, w.Radius)
	assert.Equal(t, 0.1, w.Resolution)
	require.Len(t, b.Diagnostics(), 1)
	assert.Contains(t, b.Diagnostics()[0], "idw")
}

func TestNewRasterWriter_SingleOutputNoDiagnostic(t *testing.T) {
	b := NewRasterWriter("/out/dsm", 1, 1, "max")
	assert.Empty(t, b.Diagnostics())
}

func TestNewRasterWriter_NoOutputs(t *testing.T) {
	_, err := NewRasterWriter("/out/dsm", 1, 1).Readers("in.las")
	assert.ErrorIs(t, err, ErrNoOutputType)
}

func TestPipeline_JSON(t *testing.T) {
	p, err := NewRasterWriter("/out/dtm", 0.5, 1, "idw").
		MaxSD(20, 3).
		Decimation(4).
		Readers("/data/a.las", "/data/b.las")
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))

	want := []map[string]interface{}{
		{"type": "filters.merge"},
		{"type": "readers.las", "filename": "/data/b.las"},
		{"type": "readers.las", "filename": "/data/a.las"},
		{"type": "filters.decimation", "step": 4.0},
		{"type": "filters.outlier", "method": "statistical", "mean_k": 20.0, "multiplier": 3.0},
		{"type": "writers.gdal", "filename": "/out/dtm.idw.tif", "resolution": 1.0, "radius": 0.5, "output_type": "idw"},
	}
	if diff := cmp.Diff(want, got["pipeline"]); diff != "" {
		t.Errorf("pipeline JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestStageKinds(t *testing.T) {
	assert.Equal(t, KindReader, PointReader{}.Kind())
	assert.Equal(t, KindFilter, MergeFilter{}.Kind())
	assert.Equal(t, KindWriter, RasterWriter{}.Kind())
	assert.Equal(t, "filter", KindFilter.String())
}
