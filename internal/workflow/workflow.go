// Package workflow runs the processing stages of a dataset in dependency
// order, threading a typed Outputs value from one stage to the next.
package workflow

import (
	"context"
	"io"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/display"
	"github.com/peddyhh/ODM/internal/types"
)

// Stage is one step of the workflow. Process receives a copy of the
// accumulated outputs and returns it with its own results filled in.
type Stage interface {
	Name() string
	Process(ctx context.Context, in types.Outputs) (types.Outputs, error)
}

// Logger is the logging surface the workflow and its stages need.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Workflow is a DAG of stages.
type Workflow struct {
	RunID string
	Log   Logger

	graph graph.Graph[string, Stage]
	added map[string]int // insertion order, used to break ties
}

// New returns an empty workflow with a fresh run ID.
func New(log Logger) *Workflow {
	return &Workflow{
		RunID: uuid.NewString(),
		Log:   log,
		graph: graph.New(func(s Stage) string { return s.Name() }, graph.Directed(), graph.PreventCycles()),
		added: make(map[string]int),
	}
}

// Add registers s to run after the named stages, which must already exist.
func (w *Workflow) Add(s Stage, after ...string) error {
	if err := w.graph.AddVertex(s); err != nil {
		return errors.Wrapf(err, "unable to add stage %s", s.Name())
	}
	w.added[s.Name()] = len(w.added)

	for _, parent := range after {
		if err := w.graph.AddEdge(parent, s.Name()); err != nil {
			return errors.Wrapf(err, "unable to add edge from %s to %s", parent, s.Name())
		}
	}
	return nil
}

// Order returns the stage names in execution order. Stages with no
// ordering constraint between them keep their insertion order.
func (w *Workflow) Order() ([]string, error) {
	order, err := graph.StableTopologicalSort(w.graph, func(a, b string) bool {
		return w.added[a] < w.added[b]
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to order stages")
	}
	return order, nil
}

// DrawDOT writes the stage graph in DOT format.
func (w *Workflow) DrawDOT(out io.Writer) error {
	if err := draw.DOT(w.graph, out); err != nil {
		return errors.Wrap(err, "unable to draw stage graph")
	}
	return nil
}

// Run executes the stages in order under policy. It stops after the
// policy's end stage, on the first error, or when ctx is cancelled.
func (w *Workflow) Run(ctx context.Context, in types.Outputs, policy Policy) (types.Outputs, RunStats, error) {
	var stats RunStats

	order, err := w.Order()
	if err != nil {
		return in, stats, err
	}
	if err := policy.Validate(order); err != nil {
		return in, stats, err
	}

	stats.Total = len(order)
	w.Log.Info("Run %s: %d stages", w.RunID, len(order))

	out := in
	for i, name := range order {
		if ctx.Err() != nil {
			w.Log.Warn("Interrupted")
			return out, stats, ctx.Err()
		}

		stage, err := w.graph.Vertex(name)
		if err != nil {
			return out, stats, errors.Wrapf(err, "unable to find stage %s", name)
		}

		out.Rerun = policy.Rerun(order, name)
		w.Log.Info("[%d/%d] Running %s stage", i+1, len(order), name)
		if out.Rerun {
			w.Log.Info("Rerun requested for %s", name)
		}

		start := time.Now()
		out, err = stage.Process(ctx, out)
		elapsed := time.Since(start)
		stats.record(name, elapsed)
		if err != nil {
			return out, stats, errors.Wrapf(err, "%s stage failed", name)
		}
		w.Log.Success("Finished %s stage in %s", name, display.FormatDuration(elapsed))

		if name == policy.EndWith {
			w.Log.Info("Stopping after %s stage", name)
			break
		}
	}
	out.Rerun = false
	return out, stats, nil
}
