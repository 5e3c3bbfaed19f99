package workflow

import (
	"github.com/pkg/errors"

	"github.com/peddyhh/ODM/internal/config"
)

// Policy decides which stages rerun and where the workflow stops.
type Policy struct {
	RerunOnly string // --rerun: rerun this stage only.
	RerunAll  bool
	RerunFrom string // --rerun-from: rerun this stage and every later one.
	EndWith   string
}

// PolicyFromConfig reads the stage control options of cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		RerunOnly: cfg.Rerun,
		RerunAll:  cfg.RerunAll,
		RerunFrom: cfg.RerunFrom,
		EndWith:   cfg.EndWith,
	}
}

// Validate checks that every stage the policy names is in order.
func (p Policy) Validate(order []string) error {
	for _, name := range []string{p.RerunOnly, p.RerunFrom, p.EndWith} {
		if name != "" && indexOf(order, name) < 0 {
			return errors.Errorf("unknown stage %q", name)
		}
	}
	return nil
}

// Rerun reports whether name must be recomputed.
func (p Policy) Rerun(order []string, name string) bool {
	if p.RerunAll || p.RerunOnly == name {
		return true
	}
	if p.RerunFrom == "" {
		return false
	}
	from := indexOf(order, p.RerunFrom)
	return from >= 0 && indexOf(order, name) >= from
}

func indexOf(order []string, name string) int {
	for i, s := range order {
		if s == name {
			return i
		}
	}
	return -1
}
