package pdal

import (
	"encoding/json"
	"strconv"
)

// Kind classifies a stage by its role in the pipeline.
type Kind int

const (
	KindReader Kind = iota
	KindFilter
	KindWriter
)

func (k Kind) String() string {
	switch k {
	case KindReader:
		return "reader"
	case KindFilter:
		return "filter"
	case KindWriter:
		return "writer"
	default:
		return "unknown"
	}
}

// Stage is one element of a PDAL pipeline. The set of implementations is
// closed; each converts itself to PDAL's flat JSON object in MarshalJSON.
type Stage interface {
	Kind() Kind
	// Type is the PDAL stage identifier, e.g. "filters.range".
	Type() string
	stage()
}

// RasterWriter writes an interpolated GeoTIFF (writers.gdal).
type RasterWriter struct {
	Filename   string  `json:"filename"`
	Resolution float64 `json:"resolution"`
	Radius     float64 `json:"radius"`
	OutputType string  `json:"output_type"`
}

func (RasterWriter) Kind() Kind   { return KindWriter }
func (RasterWriter) Type() string { return "writers.gdal" }
func (RasterWriter) stage()       {}

func (w RasterWriter) MarshalJSON() ([]byte, error) {
	type fields RasterWriter
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{w.Type(), fields(w)})
}

// PointWriter writes a LAS/LAZ point file (writers.las).
type PointWriter struct {
	Filename string `json:"filename"`
}

func (PointWriter) Kind() Kind   { return KindWriter }
func (PointWriter) Type() string { return "writers.las" }
func (PointWriter) stage()       {}

func (w PointWriter) MarshalJSON() ([]byte, error) {
	type fields PointWriter
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{w.Type(), fields(w)})
}

// DecimationFilter keeps every Step-th point (filters.decimation).
type DecimationFilter struct {
	Step int `json:"step"`
}

func (DecimationFilter) Kind() Kind   { return KindFilter }
func (DecimationFilter) Type() string { return "filters.decimation" }
func (DecimationFilter) stage()       {}

func (f DecimationFilter) MarshalJSON() ([]byte, error) {
	type fields DecimationFilter
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{f.Type(), fields(f)})
}

// RangeFilter keeps points inside Limits, written as "Dimension[min:max]"
// (filters.range).
type RangeFilter struct {
	Limits string `json:"limits"`
}

func (RangeFilter) Kind() Kind   { return KindFilter }
func (RangeFilter) Type() string { return "filters.range" }
func (RangeFilter) stage()       {}

func (f RangeFilter) MarshalJSON() ([]byte, error) {
	type fields RangeFilter
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{f.Type(), fields(f)})
}

// OutlierFilter removes statistical outliers (filters.outlier).
type OutlierFilter struct {
	Method     string  `json:"method"`
	MeanK      int     `json:"mean_k"`
	Multiplier float64 `json:"multiplier"`
}

func (OutlierFilter) Kind() Kind   { return KindFilter }
func (OutlierFilter) Type() string { return "filters.outlier" }
func (OutlierFilter) stage()       {}

func (f OutlierFilter) MarshalJSON() ([]byte, error) {
	type fields OutlierFilter
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{f.Type(), fields(f)})
}

// CropFilter keeps points inside a WKT polygon (filters.crop).
type CropFilter struct {
	Polygon string `json:"polygon"`
}

func (CropFilter) Kind() Kind   { return KindFilter }
func (CropFilter) Type() string { return "filters.crop" }
func (CropFilter) stage()       {}

func (f CropFilter) MarshalJSON() ([]byte, error) {
	type fields CropFilter
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{f.Type(), fields(f)})
}

// MergeFilter joins the output of every preceding reader (filters.merge).
type MergeFilter struct{}

func (MergeFilter) Kind() Kind   { return KindFilter }
func (MergeFilter) Type() string { return "filters.merge" }
func (MergeFilter) stage()       {}

func (f MergeFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{f.Type()})
}

// PointReader reads a LAS/LAZ file by absolute path (readers.las).
type PointReader struct {
	Filename string `json:"filename"`
}

func (PointReader) Kind() Kind   { return KindReader }
func (PointReader) Type() string { return "readers.las" }
func (PointReader) stage()       {}

func (r PointReader) MarshalJSON() ([]byte, error) {
	type fields PointReader
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{r.Type(), fields(r)})
}

// formatNumber renders v without a trailing ".0" or exponent, matching how
// range limits are written by hand ("Z[:120]", "ScanAngleRank[-15:15]").
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
