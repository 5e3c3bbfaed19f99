// Package types holds the project layout and the typed context threaded
// between workflow stages.
package types

import (
	"path/filepath"

	"github.com/peddyhh/ODM/internal/photo"
)

// Tree is the on-disk layout of one dataset, rooted at <project>/<name>.
type Tree struct {
	Root string
}

// NewTree returns the layout for dataset name under projectPath.
func NewTree(projectPath, name string) *Tree {
	return &Tree{Root: filepath.Join(projectPath, name)}
}

func (t *Tree) path(elem ...string) string {
	return filepath.Join(append([]string{t.Root}, elem...)...)
}

// DatasetRaw is the input images directory.
func (t *Tree) DatasetRaw() string { return t.path("images") }

// OpenSfM is the OpenSfM project directory.
func (t *Tree) OpenSfM() string { return t.path("opensfm") }

// Submodels is the directory create_submodels writes into.
func (t *Tree) Submodels() string { return t.path("submodels") }

// GCP is the optional ground control point list.
func (t *Tree) GCP() string { return t.path("gcp_list.txt") }

// GeoreferencedModel is the point cloud consumed by DEM generation.
func (t *Tree) GeoreferencedModel() string {
	return t.path("odm_georeferencing", "odm_georeferenced_model.las")
}

// DEM is the output directory for DSM/DTM rasters.
func (t *Tree) DEM() string { return t.path("odm_dem") }

// Reconstruction is the photo set being reconstructed.
type Reconstruction struct {
	Photos []photo.Photo
	// File is the engine's reconstruction output once built.
	File string
}

// Submodel is one partition of a large dataset.
type Submodel struct {
	Name         string // e.g. "submodel_0000"
	Path         string // Absolute path of the submodel's OpenSfM directory.
	MatchingDone bool
	Processed    bool
	// Reconstruction is the submodel's reconstruction.json once processed.
	Reconstruction string
	// Aligned is reserved for submodel alignment, which is not run yet.
	Aligned bool
}

// Outputs is the context passed from stage to stage. Each stage receives a
// copy, fills in what it produces, and returns it.
type Outputs struct {
	Tree           *Tree
	Reconstruction *Reconstruction

	// Large is the split decision: true when the photo count exceeds the
	// split threshold and the dataset was partitioned into Submodels.
	Large     bool
	Submodels []Submodel

	// Rasters lists DEM files produced by the dem stage.
	Rasters []string

	// Rerun is set by the workflow for the stage about to run.
	Rerun bool
}
