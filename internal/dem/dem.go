// Package dem builds digital surface and terrain models from a point cloud
// by assembling raster pipelines and running them through pdal.
package dem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/pdal"
)

// GroundClass is the LAS classification code for ground points.
const GroundClass = 2

// Logger is the logging surface DEM generation needs.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
}

// Request describes one raster product. A raster is produced per radius.
type Request struct {
	Inputs     []string
	Output     string // Filename prefix; "<Output>.<stat>.tif" is written.
	Radius     []float64
	Resolution float64
	Outputs    []string
	Decimation int
	Filters    pdal.FilterOptions
	// Classification restricts the points to one class when set.
	Classification *int
}

// Generator creates DEMs with a pdal Executor.
type Generator struct {
	Exec *pdal.Executor
	Log  Logger

	Resolution float64
	Radius     []float64
	Outputs    []string
	Decimation int
	Filters    pdal.FilterOptions

	GroundMethod config.GroundMethod
	Ground       pdal.GroundParams // Input and Output are filled per run.
}

// New builds a Generator from cfg.
func New(cfg *config.Config, exec *pdal.Executor, log Logger) *Generator {
	initial := cfg.InitialDistance
	return &Generator{
		Exec:       exec,
		Log:        log,
		Resolution: cfg.DEMResolution,
		Radius:     cfg.DEMRadius,
		Outputs:    cfg.DEMOutputs,
		Decimation: cfg.DEMDecimation,
		Filters: pdal.FilterOptions{
			MaxSD:     cfg.DEMMaxSD,
			MaxZ:      cfg.DEMMaxZ,
			MaxAngle:  cfg.DEMMaxAngle,
			ReturnNum: cfg.DEMReturnNum,
		},
		GroundMethod: cfg.GroundMethod,
		Ground: pdal.GroundParams{
			Slope:           cfg.Slope,
			CellSize:        cfg.CellSize,
			InitialDistance: &initial,
			MaxWindowSize:   cfg.MaxWindowSize,
			MaxDistance:     cfg.MaxDistance,
			Approximate:     cfg.Approximate,
		},
	}
}

// Create runs one raster pipeline per radius and returns the raster paths in
// radius order. With several radii each file name carries its radius.
func (g *Generator) Create(ctx context.Context, r Request) ([]string, error) {
	if len(r.Radius) == 0 {
		return nil, errors.New("no DEM radius given")
	}

	var rasters []string
	for _, radius := range r.Radius {
		fout := r.Output
		if len(r.Radius) > 1 {
			fout = fmt.Sprintf("%s_r%s", r.Output, strconv.FormatFloat(radius, 'f', -1, 64))
		}

		b := pdal.NewRasterWriter(fout, radius, r.Resolution, r.Outputs...).Filters(r.Filters)
		if r.Decimation > 1 {
			b.Decimation(r.Decimation)
		}
		if r.Classification != nil {
			b.Classification(*r.Classification, pdal.ClassEquals)
		}
		p, err := b.Readers(r.Inputs...)
		if err != nil {
			return rasters, errors.Wrapf(err, "unable to build pipeline for %s", fout)
		}
		for _, d := range b.Diagnostics() {
			g.Log.Warn("%s", d)
		}

		if err := g.Exec.Run(ctx, p); err != nil {
			return rasters, errors.Wrapf(err, "pdal pipeline for %s failed", fout)
		}
		if w, ok := p.Writer().(pdal.RasterWriter); ok {
			rasters = append(rasters, w.Filename)
		}
	}
	return rasters, nil
}

// Options selects the products of Generate.
type Options struct {
	Input  string // Georeferenced point cloud.
	OutDir string
	DSM    bool
	DTM    bool
}

// Generate builds the requested DSM and DTM concurrently. The DTM path
// classifies ground points into <OutDir>/classified.las first. Rasters are
// returned DSM first, then DTM.
func (g *Generator) Generate(ctx context.Context, opts Options) ([]string, error) {
	if !opts.DSM && !opts.DTM {
		return nil, nil
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", opts.OutDir)
	}

	var (
		mu       sync.Mutex
		products = make(map[string][]string)
	)
	record := func(kind string, rasters []string) {
		mu.Lock()
		defer mu.Unlock()
		products[kind] = rasters
	}

	eg, ctx := errgroup.WithContext(ctx)
	if opts.DSM {
		eg.Go(func() error {
			g.Log.Info("Creating DSM")
			rasters, err := g.Create(ctx, g.request(opts.Input, filepath.Join(opts.OutDir, "dsm"), nil))
			record("dsm", rasters)
			return err
		})
	}
	if opts.DTM {
		eg.Go(func() error {
			classified := filepath.Join(opts.OutDir, "classified.las")
			params := g.Ground
			params.Input = opts.Input
			params.Output = classified

			g.Log.Info("Classifying ground points with %s", g.GroundMethod)
			if err := g.Exec.Ground(ctx, g.GroundMethod, params); err != nil {
				return errors.Wrap(err, "ground classification failed")
			}

			g.Log.Info("Creating DTM")
			ground := GroundClass
			rasters, err := g.Create(ctx, g.request(classified, filepath.Join(opts.OutDir, "dtm"), &ground))
			record("dtm", rasters)
			return err
		})
	}
	err := eg.Wait()
	return append(products["dsm"], products["dtm"]...), err
}

func (g *Generator) request(input, output string, class *int) Request {
	return Request{
		Inputs:         []string{input},
		Output:         output,
		Radius:         g.Radius,
		Resolution:     g.Resolution,
		Outputs:        g.Outputs,
		Decimation:     g.Decimation,
		Filters:        g.Filters,
		Classification: class,
	}
}
