package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Routine Document Structures ---

// Document represents one parsed routine file. A deployment usually splits
// global defaults and routines across several files; documents are merged
// after decoding.
type Document struct {
	Defaults []*DefaultsBlock `hcl:"defaults,block"`
	Routines []*Routine       `hcl:"routine,block"`
	Body     hcl.Body         `hcl:",remain"`
}

// DefaultsBlock is a bag of default settings. At document top level it forms
// the global scope; inside a routine it forms the routine scope. Attribute
// values may be literals or formulas; classification happens at load time.
type DefaultsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Routine represents a `routine` block: a named, ordered collection of
// calibration steps plus the general switches controlling its expansion.
type Routine struct {
	Name     string         `hcl:"name,label"`
	General  *General       `hcl:"general,block"`
	Defaults *DefaultsBlock `hcl:"defaults,block"`
	Steps    []*Step        `hcl:"step,block"`
	Body     hcl.Body       `hcl:",remain"`
}

// General represents the `general` block of a routine. Besides the fixed
// attributes below it carries one boolean enable flag per step name; those
// are decoded from the remaining body so routines can declare arbitrary
// step names without schema changes.
type General struct {
	// Transitions lists the qubit transitions to calibrate, in execution
	// order (e.g. ["ge", "ef"]). Step groups run fully sequentially, one
	// transition after the other.
	Transitions []string `hcl:"transitions"`

	// Update controls whether accepted results are written to the qubit
	// parameter store at all.
	Update bool `hcl:"update,optional"`

	// CommitEachStep switches the commit granularity from one write at
	// routine completion to one write per accepted step.
	CommitEachStep bool `hcl:"commit_each_step,optional"`

	// Recalibrate forces re-measurement of steps whose outputs are already
	// present in the parameter store.
	Recalibrate bool `hcl:"recalibrate,optional"`

	// Repeats optionally maps a transition name to an iteration count,
	// e.g. `repeats = { ge = 2 }`. Missing transitions run once.
	Repeats hcl.Expression `hcl:"repeats,optional"`

	// Flags holds the per-step enable flags (`rabi = true`, ...).
	Flags hcl.Body `hcl:",remain"`
}

// Step represents a `step` block. The block label is the step name; the
// experiment type defaults to the step name when not given explicitly, so
// variant steps (`rabi_wide`) can share an experiment with their parent.
type Step struct {
	Name       string `hcl:"name,label"`
	Experiment string `hcl:"experiment,optional"`

	// Required marks a step whose unrecovered failure aborts the routine.
	Required bool `hcl:"required,optional"`

	// Auto, when set to false, removes the step from the normal schedule;
	// such a step only runs when another step names it as a fallback.
	Auto *bool `hcl:"auto,optional"`

	// Fallback names a step to run when this step fails on measurement
	// quality (non-convergent fit, out-of-range result).
	Fallback string `hcl:"fallback,optional"`

	// After lists step names that must have succeeded before this step
	// runs; otherwise the step is skipped, not failed.
	After []string `hcl:"after,optional"`

	// Transitions optionally restricts the step to a subset of the
	// routine's transition list.
	Transitions []string `hcl:"transitions,optional"`

	Branch   *Branch        `hcl:"branch,block"`
	Settings *SettingsBlock `hcl:"settings,block"`
	Body     hcl.Body       `hcl:",remain"`
}

// Branch gates a step on a fitted metric of an earlier step. The predicate
// reads recorded results only; it never re-queries the instrument.
type Branch struct {
	// Source is the step name whose result provides the metric.
	Source string `hcl:"source"`

	// Metric is the output name to test, taken by absolute value.
	Metric string `hcl:"metric"`

	// Above/Below bound the metric; a nil bound is not checked. A step
	// with `below = 5e6` runs only while |metric| < 5e6.
	Above *float64 `hcl:"above,optional"`
	Below *float64 `hcl:"below,optional"`
}

// SettingsBlock is the step-scope settings layer. Attributes may be
// literals or formulas over prior fitted outputs, hardware constants, and
// stored qubit parameters.
type SettingsBlock struct {
	Body hcl.Body `hcl:",remain"`
}
