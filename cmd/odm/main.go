// Command odm is the CLI entrypoint for the photogrammetry workflow.
//
// It parses flags, validates configuration, and either runs system
// diagnostics (--check) or the dataset -> split -> opensfm -> dem workflow
// on one dataset. Large datasets re-invoke this command once per submodel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/check"
	"github.com/peddyhh/ODM/internal/config"
	"github.com/peddyhh/ODM/internal/display"
	"github.com/peddyhh/ODM/internal/logging"
	"github.com/peddyhh/ODM/internal/system"
	"github.com/peddyhh/ODM/internal/types"
	"github.com/peddyhh/ODM/internal/workflow"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "0.3.1"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, os.Args[1:], version); err != nil {
		fmt.Fprintf(os.Stderr, "odm: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "odm: %v\n", err)
		return 1
	}

	root, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "odm: %v\n", err)
		return 1
	}
	defer root.Close()

	// Phase 2: Logger available.
	p := root.Palette()
	display.PrintBanner(os.Stdout, p.Cyan, p.Reset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		root.Warn("Received interrupt, stopping current stage")
		cancel()
	}()

	runner := system.NewExecRunner(cfg.Timeout)

	if cfg.CheckOnly {
		check.RunCheck(ctx, &cfg, runner, root)
		return 0
	}

	projectAbs, err := filepath.Abs(cfg.ProjectPath)
	if err != nil {
		root.Error("Cannot resolve project path: %s", cfg.ProjectPath)
		return 1
	}
	tree := types.NewTree(projectAbs, cfg.Name)
	if fi, err := os.Stat(tree.Root); err != nil || !fi.IsDir() {
		root.Error("Dataset not found: %s", tree.Root)
		return 1
	}

	log := root.WithPrefix(cfg.Name)
	log.Info("=== ODM v%s (%s) ===", version, commit)
	log.Info("Dataset: %s", tree.Root)

	// Fail fast if the engines are unavailable.
	if err := check.CheckDeps(&cfg); err != nil {
		log.Error("%v", err)
		return 1
	}

	// Submodel runs are whole workflows; the per-command timeout does not
	// apply to them.
	wf, err := workflow.Build(&cfg, runner, system.NewExecRunner(0), log)
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	if cfg.GraphFile != "" {
		if err := writeGraph(wf, cfg.GraphFile); err != nil {
			log.Error("%v", err)
			return 1
		}
		log.Info("Stage graph written to %s", cfg.GraphFile)
	}

	// Phase 3: Run the workflow.
	out, stats, err := wf.Run(ctx, types.Outputs{Tree: tree}, workflow.PolicyFromConfig(&cfg))
	if err != nil {
		log.Error("%v", err)
		if code := system.ExitCode(err); code > 0 {
			return code
		}
		return 1
	}

	log.Success("Completed %d of %d stages in %s",
		len(stats.Ran), stats.Total, display.FormatDuration(stats.TotalElapsed()))
	if out.Large {
		log.Info("Processed %d submodels", len(out.Submodels))
	}
	for _, r := range out.Rasters {
		log.Info("Raster: %s", r)
	}
	return 0
}

func writeGraph(wf *workflow.Workflow, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "unable to create graph file")
	}
	if err := wf.DrawDOT(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
