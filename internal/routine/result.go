package routine

import "github.com/qulab/autocal/internal/measure"

// Status is the terminal state of one node.
type Status int

const (
	// StatusSuccess means the measurement produced a validated fit.
	StatusSuccess Status = iota
	// StatusFailed means the measurement failed and no retry or fallback
	// resolved it at the node level.
	StatusFailed
	// StatusSkipped means the node never called the instrument: disabled,
	// gated, branch predicate unmet, untriggered fallback, or aborted.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one node. Results are append-only: a
// recorded result is never mutated, so accepted state cannot be corrupted
// by later failures.
type Result struct {
	NodeID  string
	Status  Status
	Outputs measure.Outputs
	Reason  string
	Err     error
	// Attempts counts instrument calls made for this node, including
	// transient retries. Zero for skipped nodes.
	Attempts int
}

// NewSuccess builds a success result carrying the fitted outputs.
func NewSuccess(nodeID string, outputs measure.Outputs, attempts int) *Result {
	return &Result{NodeID: nodeID, Status: StatusSuccess, Outputs: outputs, Attempts: attempts}
}

// NewFailed builds a failure result with its reason.
func NewFailed(nodeID, reason string, err error, attempts int) *Result {
	return &Result{NodeID: nodeID, Status: StatusFailed, Reason: reason, Err: err, Attempts: attempts}
}

// NewSkipped builds a skip result with its reason. Skips always carry a
// reason so a run can be audited after the fact.
func NewSkipped(nodeID, reason string) *Result {
	return &Result{NodeID: nodeID, Status: StatusSkipped, Reason: reason}
}
