package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/qulab/autocal/internal/ctxlog"
	"github.com/qulab/autocal/internal/measure"
	"github.com/qulab/autocal/internal/routine"
)

// SettingMaxRetries is the settings key bounding local retries of
// transient measurement failures. It resolves through the normal scope
// chain, so deployments tune it globally, per routine, or per step.
const SettingMaxRetries = "max_transient_retries"

// DefaultMaxRetries applies when no scope declares a retry bound.
const DefaultMaxRetries = 2

// Executor runs single plan nodes against the measurement backends of a
// registry. It holds no per-run state; one executor serves concurrent
// runs on different qubits.
type Executor struct {
	registry *measure.Registry
}

// New creates an executor over the given experiment registry.
func New(registry *measure.Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute produces the terminal result of one node: a skip when a
// predicate rules the node out, otherwise the outcome of the measurement
// call with transient retries applied. A non-nil error is fatal for the
// whole run and indicates an invalid plan (unresolvable settings, missing
// backend, output contract violation) or cancellation, never measurement
// noise.
func (e *Executor) Execute(ctx context.Context, plan *routine.Plan, node *routine.Node, state *routine.RunState) (*routine.Result, error) {
	logger := ctxlog.FromContext(ctx).With("node", node.ID, "experiment", node.Experiment)

	if skip := e.skipReason(state, node); skip != "" {
		logger.Info("⏭️ Step skipped.", "reason", skip)
		return routine.NewSkipped(node.ID, skip), nil
	}

	resolved, err := e.resolveSettings(plan, node, state)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", node.ID, err)
	}

	runner, ok := e.registry.Runner(node.Experiment)
	if !ok {
		return nil, fmt.Errorf("step %s: no measurement backend registered for experiment %q", node.ID, node.Experiment)
	}

	maxRetries, err := e.retryBound(plan, node, state)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", node.ID, err)
	}

	qubitID := qubitIDFrom(ctx)
	attempt := 0
	for {
		attempt++
		logger.Info("🔬 Running measurement.", "attempt", attempt, "qubit", qubitID)

		outputs, runErr := runner.Run(ctx, measure.Request{
			Experiment: node.Experiment,
			Transition: node.Transition,
			QubitID:    qubitID,
			Settings:   resolved,
			Attempt:    attempt,
		})
		if runErr == nil {
			if err := validateOutputs(node, outputs); err != nil {
				return nil, fmt.Errorf("step %s: %w", node.ID, err)
			}
			logger.Info("✅ Step succeeded.", "attempts", attempt)
			return routine.NewSuccess(node.ID, outputs, attempt), nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("step %s: %w", node.ID, ctx.Err())
		}

		var mErr *measure.Error
		if errors.As(runErr, &mErr) && mErr.Kind.Transient() && attempt <= maxRetries {
			logger.Warn("Transient measurement failure, retrying.",
				"kind", mErr.Kind.String(), "reason", mErr.Reason, "attempt", attempt, "max_retries", maxRetries)
			continue
		}

		reason := failureReason(runErr)
		logger.Warn("❌ Step failed.", "reason", reason, "attempts", attempt)
		return routine.NewFailed(node.ID, reason, runErr, attempt), nil
	}
}

// skipReason evaluates the node's predicates against recorded results and
// returns a human-readable reason when the node must not run.
func (e *Executor) skipReason(state *routine.RunState, node *routine.Node) string {
	if !node.Enabled {
		return "disabled by configuration"
	}

	if node.FallbackFor != "" {
		parent, ok := state.Result(node.FallbackFor)
		if !ok {
			return fmt.Sprintf("fallback for %s, which has no result", node.FallbackFor)
		}
		if !qualityFailure(parent) {
			return fmt.Sprintf("fallback for %s, which did not fail on measurement quality", node.FallbackFor)
		}
	}

	for _, gate := range node.Gates {
		res, ok := state.Result(gate)
		if !ok || res.Status != routine.StatusSuccess {
			return fmt.Sprintf("gated on %s, which did not succeed", gate)
		}
	}

	if node.Branch != nil {
		if reason := branchSkip(state, node.Branch); reason != "" {
			return reason
		}
	}
	return ""
}

func branchSkip(state *routine.RunState, gate *routine.MetricGate) string {
	res, ok := state.Result(gate.SourceID)
	if !ok || res.Status != routine.StatusSuccess {
		return fmt.Sprintf("branch source %s did not succeed", gate.SourceID)
	}
	val, ok := res.Outputs[gate.Metric]
	if !ok {
		return fmt.Sprintf("branch source %s has no output %q", gate.SourceID, gate.Metric)
	}

	metric := math.Abs(val)
	if gate.Above != nil && metric <= *gate.Above {
		return fmt.Sprintf("branch condition not met: %s (|%s| = %g)", gate.Describe(), gate.Metric, metric)
	}
	if gate.Below != nil && metric >= *gate.Below {
		return fmt.Sprintf("branch condition not met: %s (|%s| = %g)", gate.Describe(), gate.Metric, metric)
	}
	return ""
}

// resolveSettings resolves the node's full scope chain in two passes:
// literals first, so formulas may reference sibling settings by bare name
// alongside the hw/qubit/step namespaces.
func (e *Executor) resolveSettings(plan *routine.Plan, node *routine.Node, state *routine.RunState) (map[string]cty.Value, error) {
	bindings := plan.Bindings(state, node)

	for _, key := range node.Chain.Keys() {
		val, ok := node.Chain.Lookup(key)
		if !ok || val.IsFormula() {
			continue
		}
		lit, err := val.Resolve(nil)
		if err != nil {
			return nil, err
		}
		bindings[key] = lit
	}

	return node.Chain.ResolveAll(bindings)
}

// retryBound resolves the transient-retry bound through the scope chain.
func (e *Executor) retryBound(plan *routine.Plan, node *routine.Node, state *routine.RunState) (int, error) {
	if _, ok := node.Chain.Lookup(SettingMaxRetries); !ok {
		return DefaultMaxRetries, nil
	}
	bound, err := node.Chain.Int(SettingMaxRetries, plan.Bindings(state, node))
	if err != nil {
		return 0, err
	}
	if bound < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", SettingMaxRetries, bound)
	}
	return bound, nil
}

// validateOutputs checks the measured output set against the experiment's
// declared contract. The match must be exact; a partial fit result must
// never be mistaken for a calibration.
func validateOutputs(node *routine.Node, outputs measure.Outputs) error {
	missing := make([]string, 0)
	for _, name := range node.Outputs {
		if _, ok := outputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	declared := make(map[string]struct{}, len(node.Outputs))
	for _, name := range node.Outputs {
		declared[name] = struct{}{}
	}
	extra := make([]string, 0)
	for name := range outputs {
		if _, ok := declared[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	if len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("experiment %q violated its output contract (missing: %v, undeclared: %v)",
			node.Experiment, missing, extra)
	}
	return nil
}

// qualityFailure reports whether a result is a failed measurement of the
// quality class, the only class that triggers a fallback step.
func qualityFailure(res *routine.Result) bool {
	if res.Status != routine.StatusFailed {
		return false
	}
	var mErr *measure.Error
	if errors.As(res.Err, &mErr) {
		return !mErr.Kind.Transient()
	}
	// Failures without a classification count as quality failures:
	// retrying an unknown condition risks masking a miscalibrated device.
	return true
}

func failureReason(err error) string {
	var mErr *measure.Error
	if errors.As(err, &mErr) {
		return fmt.Sprintf("%s: %s", mErr.Kind.String(), mErr.Reason)
	}
	return err.Error()
}

type qubitIDKey struct{}

// WithQubitID stores the target qubit identifier in the context for the
// duration of one run.
func WithQubitID(ctx context.Context, qubitID string) context.Context {
	return context.WithValue(ctx, qubitIDKey{}, qubitID)
}

func qubitIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(qubitIDKey{}).(string); ok {
		return id
	}
	return ""
}
