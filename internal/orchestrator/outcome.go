package orchestrator

import (
	"time"

	"github.com/qulab/autocal/internal/measure"
	"github.com/qulab/autocal/internal/paramstore"
	"github.com/qulab/autocal/internal/routine"
)

// RunStatus is the overall verdict of one routine run.
type RunStatus int

const (
	// RunSuccess means every node succeeded or was skipped by its own
	// predicates, and all staged parameters committed.
	RunSuccess RunStatus = iota
	// RunSuccessWithWarnings means the run completed but at least one
	// non-required step failed; its parameters were not committed.
	RunSuccessWithWarnings
	// RunAborted means a required step failed without recovery, or the
	// run was cancelled; later steps were skipped.
	RunAborted
	// RunFailed means the run hit a fatal error: invalid configuration, a
	// store fault, or a rejected commit.
	RunFailed
)

func (s RunStatus) String() string {
	switch s {
	case RunSuccess:
		return "success"
	case RunSuccessWithWarnings:
		return "success-with-warnings"
	case RunAborted:
		return "aborted"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepSummary is the audited terminal state of one plan node.
type StepSummary struct {
	NodeID   string
	Status   routine.Status
	Reason   string
	Attempts int
	Outputs  measure.Outputs
}

// Outcome is the full report of one routine run: every node's terminal
// status with its reason, the committed parameter diff, and timing. The
// committed diff reflects what actually persisted, even when the run
// later failed.
type Outcome struct {
	RunID   string
	Routine string
	QubitID string

	Status      RunStatus
	AbortReason string
	Err         error

	Steps     []StepSummary
	Committed paramstore.Diff

	Started  time.Time
	Finished time.Time
}

// Step returns the summary of one node, if present.
func (o *Outcome) Step(nodeID string) (StepSummary, bool) {
	for _, s := range o.Steps {
		if s.NodeID == nodeID {
			return s, true
		}
	}
	return StepSummary{}, false
}

func (o *Outcome) fail(err error) *Outcome {
	o.Status = RunFailed
	o.Err = err
	return o
}
