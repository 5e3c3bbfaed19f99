package pdal

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
)

// ClassificationMode selects how a classification value bounds the range.
type ClassificationMode int

const (
	ClassEquals ClassificationMode = iota // Classification[c:c]
	ClassMax                              // Classification[:c]
)

// Outlier filter defaults used by [Builder.Filters].
const (
	DefaultMeanK      = 20
	DefaultMultiplier = 3.0
)

// FilterOptions are the optional filters applied by [Builder.Filters]. A nil
// field is skipped.
type FilterOptions struct {
	MaxSD     *float64 // Outlier multiplier (mean_k is DefaultMeanK).
	MaxZ      *float64
	MaxAngle  *float64
	ReturnNum *int
}

// Builder accumulates the writer and filters of a pipeline. It is finished
// by [Builder.Readers], which fixes the stage order. Builder methods never
// validate numeric ranges; that is the caller's job.
type Builder struct {
	writer      Stage
	filters     []Stage // call order
	diagnostics []string
	err         error
}

// NewRasterWriter starts a pipeline that writes "<fout>.<output>.tif". Only
// the first output statistic is honored; any others are dropped with a
// diagnostic.
func NewRasterWriter(fout string, radius, resolution float64, outputs ...string) *Builder {
	b := &Builder{}
	if len(outputs) == 0 {
		b.err = ErrNoOutputType
		return b
	}
	if len(outputs) > 1 {
		b.diagnostics = append(b.diagnostics,
			fmt.Sprintf("More than 1 output, will only create %s", outputs[0]))
	}
	b.writer = RasterWriter{
		Filename:   fmt.Sprintf("%s.%s.tif", fout, outputs[0]),
		Resolution: resolution,
		Radius:     radius,
		OutputType: outputs[0],
	}
	return b
}

// NewPointWriter starts a pipeline that writes a point file.
func NewPointWriter(filename string) *Builder {
	return &Builder{writer: PointWriter{Filename: filename}}
}

// Diagnostics returns the messages recorded for degraded parameters.
func (b *Builder) Diagnostics() []string {
	return append([]string(nil), b.diagnostics...)
}

func (b *Builder) add(s Stage) *Builder {
	b.filters = append(b.filters, s)
	return b
}

// Decimation keeps every step-th point.
func (b *Builder) Decimation(step int) *Builder {
	return b.add(DecimationFilter{Step: step})
}

// Classification keeps points whose class equals c, or is at most c.
func (b *Builder) Classification(c int, mode ClassificationMode) *Builder {
	limits := fmt.Sprintf("Classification[%d:%d]", c, c)
	if mode == ClassMax {
		limits = fmt.Sprintf("Classification[:%d]", c)
	}
	return b.add(RangeFilter{Limits: limits})
}

// MaxSD removes points further than multiplier standard deviations from the
// mean distance to their meanK neighbors.
func (b *Builder) MaxSD(meanK int, multiplier float64) *Builder {
	return b.add(OutlierFilter{Method: "statistical", MeanK: meanK, Multiplier: multiplier})
}

// MaxZ drops points above z.
func (b *Builder) MaxZ(z float64) *Builder {
	return b.add(RangeFilter{Limits: fmt.Sprintf("Z[:%s]", formatNumber(z))})
}

// MaxAngle keeps points with |scan angle| <= a.
func (b *Builder) MaxAngle(a float64) *Builder {
	return b.add(RangeFilter{Limits: fmt.Sprintf("ScanAngleRank[%s:%s]", formatNumber(-a), formatNumber(a))})
}

// ScanEdge keeps points whose edge-of-flight-line flag equals v.
func (b *Builder) ScanEdge(v int) *Builder {
	return b.add(RangeFilter{Limits: fmt.Sprintf("EdgeOfFlightLine[%d:%d]", v, v)})
}

// ReturnNum keeps points with return number v.
func (b *Builder) ReturnNum(v int) *Builder {
	return b.add(RangeFilter{Limits: fmt.Sprintf("ReturnNum[%d:%d]", v, v)})
}

// Crop keeps points inside the WKT polygon.
func (b *Builder) Crop(wkt string) *Builder {
	return b.add(CropFilter{Polygon: wkt})
}

// Filters adds the outlier, elevation, scan angle and return number filters
// in that call order, skipping any option left nil.
func (b *Builder) Filters(o FilterOptions) *Builder {
	if o.MaxSD != nil {
		b.MaxSD(DefaultMeanK, *o.MaxSD)
	}
	if o.MaxZ != nil {
		b.MaxZ(*o.MaxZ)
	}
	if o.MaxAngle != nil {
		b.MaxAngle(*o.MaxAngle)
	}
	if o.ReturnNum != nil {
		b.ReturnNum(*o.ReturnNum)
	}
	return b
}

// Readers adds one reader per file and finishes the pipeline. Paths are made
// absolute. With more than one file a merge stage is placed ahead of all
// readers.
func (b *Builder) Readers(filenames ...string) (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(filenames) == 0 {
		return nil, ErrNoReaders
	}

	readers := make([]Stage, 0, len(filenames))
	for _, f := range filenames {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to resolve reader path %s", f)
		}
		readers = append(readers, PointReader{Filename: abs})
	}

	stages := make([]Stage, 0, len(readers)+len(b.filters)+2)
	if len(readers) > 1 {
		stages = append(stages, MergeFilter{})
	}
	stages = appendReversed(stages, readers)
	stages = appendReversed(stages, b.filters)
	stages = append(stages, b.writer)

	return &Pipeline{stages: stages}, nil
}

func appendReversed(dst, src []Stage) []Stage {
	for i := len(src) - 1; i >= 0; i-- {
		dst = append(dst, src[i])
	}
	return dst
}

// Pipeline is a finished, immutable stage sequence.
type Pipeline struct {
	stages []Stage
}

// Stages returns a copy of the stage sequence in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Types returns the PDAL type identifier of every stage in order.
func (p *Pipeline) Types() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Type()
	}
	return out
}

// Writer returns the terminal stage.
func (p *Pipeline) Writer() Stage {
	return p.stages[len(p.stages)-1]
}

// MarshalJSON renders {"pipeline": [...]} as expected by "pdal pipeline".
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Pipeline []Stage `json:"pipeline"`
	}{p.stages})
}
