package splitmerge

import (
	"fmt"

	"github.com/pkg/errors"
)

// Phase is a step of the split/merge state machine.
type Phase int

const (
	Unpartitioned Phase = iota
	PartitionDecided
	FeatureMatching
	SubmodelCreation
	PerSubmodelProcessing
	Alignment // declared, not executed
	Merge     // declared, not executed
	Done
)

var phaseNames = [...]string{
	Unpartitioned:         "unpartitioned",
	PartitionDecided:      "partition-decided",
	FeatureMatching:       "feature-matching",
	SubmodelCreation:      "submodel-creation",
	PerSubmodelProcessing: "per-submodel-processing",
	Alignment:             "alignment",
	Merge:                 "merge",
	Done:                  "done",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func isAllowedTransition(from, to Phase) bool {
	switch from {
	case Unpartitioned:
		return to == PartitionDecided
	case PartitionDecided:
		return to == FeatureMatching || to == Done
	case FeatureMatching:
		return to == SubmodelCreation
	case SubmodelCreation:
		return to == PerSubmodelProcessing
	case PerSubmodelProcessing:
		// Alignment and merge are not implemented, so processing may finish
		// the run directly.
		return to == Alignment || to == Done
	case Alignment:
		return to == Merge
	case Merge:
		return to == Done
	default:
		return false
	}
}

// machine tracks the current phase and the path taken to reach it.
type machine struct {
	phase   Phase
	history []Phase
}

func (m *machine) transition(to Phase) error {
	if !isAllowedTransition(m.phase, to) {
		return errors.Errorf("disallowed split/merge transition: %s -> %s", m.phase, to)
	}
	m.history = append(m.history, m.phase)
	m.phase = to
	return nil
}
