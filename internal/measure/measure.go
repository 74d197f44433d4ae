package measure

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Request carries everything a measurement backend needs to run one
// characterization experiment. Settings are fully resolved: every formula
// has already been evaluated, so the backend sees concrete scalars only.
type Request struct {
	Experiment string
	Transition string
	QubitID    string
	Settings   map[string]cty.Value

	// Attempt counts retries of the same step, starting at 1. Backends may
	// use it for logging; the engine resends identical settings on retry.
	Attempt int
}

// Outputs maps fitted parameter names to their extracted values. The engine
// never sees raw traces; the analysis collaborator reduces a measurement to
// this structured result.
type Outputs map[string]float64

// Runner executes one experiment on the instrument stack and returns the
// fitted outputs, or an *Error describing why no accepted fit exists.
// Implementations may block for the full physical measurement duration and
// must honor ctx cancellation between hardware operations.
type Runner interface {
	Run(ctx context.Context, req Request) (Outputs, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, req Request) (Outputs, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, req Request) (Outputs, error) {
	return f(ctx, req)
}

// Setting fetches a numeric setting from a request, with a fallback for
// backends that tolerate absent knobs.
func (r Request) Setting(name string, fallback float64) float64 {
	val, ok := r.Settings[name]
	if !ok || val.Type() != cty.Number {
		return fallback
	}
	f, _ := val.AsBigFloat().Float64()
	return f
}
