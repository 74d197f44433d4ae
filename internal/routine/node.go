package routine

import (
	"fmt"

	"github.com/qulab/autocal/internal/schema"
	"github.com/qulab/autocal/internal/settings"
)

// Node is one scheduled step instance: a step declaration expanded for a
// concrete transition and iteration. Nodes are immutable once the plan is
// built; all mutable run information lives in RunState.
type Node struct {
	// ID is the unique node identity, e.g. "rabi@ge" or "rabi@ge#2".
	ID string

	// Name is the declared step name the node was expanded from.
	Name string

	// Experiment is the experiment type executed for this node.
	Experiment string

	// Transition is the qubit transition this instance calibrates.
	Transition string

	// Iteration is the 1-based repeat index within the transition group.
	Iteration int

	// Enabled mirrors the step's enable flag from the general section.
	Enabled bool

	// Required marks a node whose unrecovered failure aborts the routine.
	Required bool

	// Gates lists node IDs that must have succeeded before this node runs.
	Gates []string

	// Branch optionally gates the node on a fitted metric of a prior node.
	Branch *MetricGate

	// FallbackFor holds the parent node ID when this node only runs as a
	// fallback after the parent's measurement-quality failure.
	FallbackFor string

	// FallbackID holds the node ID of this node's fallback, if declared.
	FallbackID string

	// Outputs is the exact set of fitted parameter names a successful run
	// must produce, from the experiment registry.
	Outputs []string

	// Chain is the node's settings scope chain (step over routine over
	// global), fixed at build time.
	Chain *settings.Chain

	step *schema.Step
}

// MetricGate is a branch predicate on a previously fitted metric. The
// metric is compared by absolute value against the configured bounds; it
// reads recorded results only and never re-queries the instrument.
type MetricGate struct {
	// SourceID is the node whose outputs provide the metric.
	SourceID string

	// Metric is the output name to test.
	Metric string

	// Above requires |metric| > bound when non-nil.
	Above *float64

	// Below requires |metric| < bound when non-nil.
	Below *float64
}

// Describe renders the gate for skip reasons and logs.
func (g *MetricGate) Describe() string {
	switch {
	case g.Above != nil && g.Below != nil:
		return fmt.Sprintf("%g < |%s.%s| < %g", *g.Above, g.SourceID, g.Metric, *g.Below)
	case g.Above != nil:
		return fmt.Sprintf("|%s.%s| > %g", g.SourceID, g.Metric, *g.Above)
	case g.Below != nil:
		return fmt.Sprintf("|%s.%s| < %g", g.SourceID, g.Metric, *g.Below)
	default:
		return fmt.Sprintf("|%s.%s| unconstrained", g.SourceID, g.Metric)
	}
}

// nodeID builds the canonical node identity for a step instance.
func nodeID(name, transition string, iteration int) string {
	if iteration > 1 {
		return fmt.Sprintf("%s@%s#%d", name, transition, iteration)
	}
	return fmt.Sprintf("%s@%s", name, transition)
}
