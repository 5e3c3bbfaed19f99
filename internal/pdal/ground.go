package pdal

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/system"
)

// DefaultInitialDistance is used by the PMF invoker when
// GroundParams.InitialDistance is nil.
const DefaultInitialDistance = 0.7

// GroundParams configures a ground classification run. Nil optional fields
// are left out of the command line so the engine's own defaults apply.
type GroundParams struct {
	Input    string
	Output   string
	Slope    float64
	CellSize float64

	InitialDistance *float64 // PMF only; DefaultInitialDistance when nil.
	MaxWindowSize   *float64
	MaxDistance     *float64 // PMF only.
	Approximate     bool     // PMF only.
}

// groundArgs builds the argument list for one method; verbose adds the
// engine's debug flag where it has one.
type groundArgs func(p GroundParams, verbose bool) []string

var groundMethods = map[config.GroundMethod]groundArgs{
	config.GroundPMF:  pmfArgs,
	config.GroundSMRF: smrfArgs,
}

// pmfArgs: pdal ground (progressive morphological filter).
func pmfArgs(p GroundParams, verbose bool) []string {
	initial := DefaultInitialDistance
	if p.InitialDistance != nil {
		initial = *p.InitialDistance
	}
	args := []string{
		"ground",
		"-i", p.Input,
		"-o", p.Output,
		"--slope", formatNumber(p.Slope),
		"--cell_size", formatNumber(p.CellSize),
		"--initial_distance", formatNumber(initial),
	}
	if p.MaxWindowSize != nil {
		args = append(args, "--max_window_size", formatNumber(*p.MaxWindowSize))
	}
	if p.MaxDistance != nil {
		args = append(args, "--max_distance", formatNumber(*p.MaxDistance))
	}
	if p.Approximate {
		args = append(args, "--approximate")
	}
	if verbose {
		args = append(args, "--developer-debug")
	}
	return args
}

// smrfArgs: pdal translate with the smrf filter.
func smrfArgs(p GroundParams, _ bool) []string {
	args := []string{
		"translate",
		"-i", p.Input,
		"-o", p.Output,
		"smrf",
		"--filters.smrf.cell=" + formatNumber(p.CellSize),
		"--filters.smrf.slope=" + formatNumber(p.Slope),
	}
	if p.MaxWindowSize != nil {
		args = append(args, "--filters.smrf.window="+formatNumber(*p.MaxWindowSize))
	}
	return args
}

// GroundArgs returns the pdal arguments (without the binary) for method.
func GroundArgs(method config.GroundMethod, p GroundParams, verbose bool) ([]string, error) {
	build, ok := groundMethods[method]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownGround, "%q", method)
	}
	return build(p, verbose), nil
}

// Ground classifies ground points of p.Input into p.Output with method. It
// blocks until the engine exits; engine output is printed afterwards in
// verbose mode.
func (e *Executor) Ground(ctx context.Context, method config.GroundMethod, p GroundParams) error {
	args, err := GroundArgs(method, p, e.Verbose)
	if err != nil {
		return err
	}
	cmd := system.Command{Name: e.Binary, Args: args}
	e.Log.Info("%s", cmd)

	out, err := e.Runner.Run(ctx, cmd, nil)
	if w := e.stream(); w != nil && out != "" {
		fmt.Fprint(w, out)
	}
	return err
}
