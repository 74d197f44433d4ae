package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qulab/autocal/internal/ctxlog"
	"github.com/qulab/autocal/internal/executor"
	"github.com/qulab/autocal/internal/hardware"
	"github.com/qulab/autocal/internal/metrics"
	"github.com/qulab/autocal/internal/paramstore"
	"github.com/qulab/autocal/internal/routine"
)

// Orchestrator drives routine plans to completion: it walks the plan node
// by node, records results, stages validated outputs, and commits them to
// the parameter store under the configured granularity. One orchestrator
// serves concurrent runs as long as no two runs target the same qubit.
type Orchestrator struct {
	exec    *executor.Executor
	store   paramstore.Store
	hw      *hardware.Constants
	metrics *metrics.Metrics
}

// New creates an orchestrator. Metrics may be nil.
func New(exec *executor.Executor, store paramstore.Store, hw *hardware.Constants, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{exec: exec, store: store, hw: hw, metrics: m}
}

// Run executes one routine on one qubit and returns the audited outcome.
// The outcome always enumerates every node's terminal status, including
// the ones skipped because an upstream failure aborted the run.
func (o *Orchestrator) Run(ctx context.Context, plan *routine.Plan, qubitID string) *Outcome {
	runID := uuid.NewString()
	logger := ctxlog.FromContext(ctx).With("run_id", runID, "routine", plan.Routine, "qubit", qubitID)
	ctx = ctxlog.WithLogger(ctx, logger)
	ctx = executor.WithQubitID(ctx, qubitID)

	outcome := &Outcome{
		RunID:     runID,
		Routine:   plan.Routine,
		QubitID:   qubitID,
		Committed: make(paramstore.Diff),
		Started:   time.Now(),
	}
	defer func() {
		outcome.Finished = time.Now()
		o.metrics.ObserveRun(plan.Routine, outcome.Status.String(), outcome.Finished.Sub(outcome.Started).Seconds())
	}()

	logger.Info("🚀 Starting calibration run.", "nodes", len(plan.Nodes))

	snapshot, err := o.store.Snapshot(ctx, qubitID)
	if err != nil {
		for _, n := range plan.Nodes {
			outcome.Steps = append(outcome.Steps, StepSummary{
				NodeID: n.ID, Status: routine.StatusSkipped, Reason: reasonNotReached,
			})
		}
		return outcome.fail(fmt.Errorf("failed to snapshot qubit parameters: %w", err))
	}
	state := routine.NewRunState(o.hw.ForQubit(qubitID), snapshot)

	run := &runContext{
		plan:     plan,
		state:    state,
		snapshot: snapshot,
		staged:   make(map[string]float64),
	}

	for node := plan.Next(state); node != nil; node = plan.Next(state) {
		// Aborts happen between steps only; a measurement in flight is
		// never torn down from here.
		if ctx.Err() != nil {
			o.abort(ctx, run, outcome, fmt.Sprintf("run cancelled: %v", ctx.Err()))
			return o.finish(ctx, run, outcome)
		}

		res, fatal := o.runNode(ctx, run, node)
		if fatal != nil {
			return o.failRun(run, outcome, fatal)
		}
		state.Record(res)
		o.metrics.ObserveStep(node.Experiment, res.Status.String(), res.Attempts)

		if err := o.afterNode(ctx, run, outcome, node, res); err != nil {
			return o.failRun(run, outcome, err)
		}
		if run.aborted {
			break
		}
	}

	return o.finish(ctx, run, outcome)
}

// runContext is the mutable bookkeeping of one run: staged-but-uncommitted
// outputs and the abort latch.
type runContext struct {
	plan     *routine.Plan
	state    *routine.RunState
	snapshot map[string]float64

	staged       map[string]float64
	abortPending string
	aborted      bool
	warnings     bool
}

// runNode executes one node, short-circuiting steps whose outputs are
// already stored when recalibration is off.
func (o *Orchestrator) runNode(ctx context.Context, run *runContext, node *routine.Node) (*routine.Result, error) {
	if !run.plan.General.Recalibrate && node.FallbackFor == "" && node.Enabled {
		if restored, ok := o.restoreFromSnapshot(run, node); ok {
			ctxlog.FromContext(ctx).Info("♻️ Step already calibrated, restoring stored outputs.", "node", node.ID)
			return restored, nil
		}
	}
	return o.exec.Execute(ctx, run.plan, node, run.state)
}

// restoreFromSnapshot rebuilds a success result from stored parameters
// when every declared output of the node is already committed. The step
// keeps feeding downstream formulas without re-measuring and contributes
// nothing to the run's diff.
func (o *Orchestrator) restoreFromSnapshot(run *runContext, node *routine.Node) (*routine.Result, bool) {
	// Predicate-carrying nodes are re-decided by the executor every run:
	// a stored result from an earlier run says nothing about whether the
	// branch would be taken against this run's measurements.
	if node.Branch != nil {
		return nil, false
	}
	for _, gate := range node.Gates {
		res, ok := run.state.Result(gate)
		if !ok || res.Status != routine.StatusSuccess {
			return nil, false
		}
	}

	outputs := make(map[string]float64, len(node.Outputs))
	for _, name := range node.Outputs {
		stored, ok := run.snapshot[paramName(node.Transition, name)]
		if !ok {
			return nil, false
		}
		outputs[name] = stored
	}
	return &routine.Result{
		NodeID:  node.ID,
		Status:  routine.StatusSuccess,
		Outputs: outputs,
		Reason:  "restored from parameter store",
	}, true
}

// afterNode applies the run-level consequences of one result: staging and
// committing outputs, tracking warnings, and deciding aborts. A required
// step's failure defers the abort while its fallback is still pending.
func (o *Orchestrator) afterNode(ctx context.Context, run *runContext, outcome *Outcome, node *routine.Node, res *routine.Result) error {
	logger := ctxlog.FromContext(ctx)

	switch res.Status {
	case routine.StatusSuccess:
		if node.ID == run.abortPending {
			// An untriggered or skipped fallback cannot happen here; a
			// successful fallback recovers the parent's failure.
			run.abortPending = ""
			logger.Info("🛟 Fallback recovered a required step.", "node", node.ID, "parent", node.FallbackFor)
		}
		if res.Reason == "" && run.plan.General.Update {
			o.stage(run, node, res)
			if run.plan.General.CommitEachStep {
				if err := o.commitStaged(ctx, run, outcome); err != nil {
					return err
				}
			}
		}

	case routine.StatusFailed:
		run.warnings = true
		if node.ID == run.abortPending {
			o.abort(ctx, run, outcome, fmt.Sprintf("required step %s failed and its fallback %s also failed", node.FallbackFor, node.ID))
			return nil
		}
		if node.Required {
			if node.FallbackID != "" {
				run.abortPending = node.FallbackID
			} else {
				o.abort(ctx, run, outcome, fmt.Sprintf("required step %s failed: %s", node.ID, res.Reason))
			}
		}

	case routine.StatusSkipped:
		if node.ID == run.abortPending {
			o.abort(ctx, run, outcome, fmt.Sprintf("required step %s failed and its fallback %s did not run", node.FallbackFor, node.ID))
		}
	}
	return nil
}

// abort marks the run aborted and records a skip for every node that has
// no terminal result yet, so the outcome still enumerates the full plan.
func (o *Orchestrator) abort(ctx context.Context, run *runContext, outcome *Outcome, reason string) {
	ctxlog.FromContext(ctx).Error("🛑 Aborting calibration run.", "reason", reason)
	run.aborted = true
	outcome.AbortReason = reason

	for _, n := range run.plan.Nodes {
		if !run.state.Terminal(n.ID) {
			run.state.Record(routine.NewSkipped(n.ID, "aborted by upstream failure"))
		}
	}
}

// finish commits any remaining staged outputs and assembles the outcome.
func (o *Orchestrator) finish(ctx context.Context, run *runContext, outcome *Outcome) *Outcome {
	logger := ctxlog.FromContext(ctx)

	if !run.aborted && len(run.staged) > 0 {
		if err := o.commitStaged(ctx, run, outcome); err != nil {
			return o.failRun(run, outcome, err)
		}
	}

	o.summarize(run, outcome)

	switch {
	case run.aborted:
		outcome.Status = RunAborted
	case run.warnings:
		outcome.Status = RunSuccessWithWarnings
	default:
		outcome.Status = RunSuccess
	}

	logger.Info("🏁 Calibration run finished.",
		"status", outcome.Status.String(), "committed_params", len(outcome.Committed))
	return outcome
}

// reasonNotReached marks nodes the run never got to before a fatal
// error. Aborted runs use their own reason; the distinction matters for
// the audit trail.
const reasonNotReached = "not reached: run failed"

// failRun closes out a run hit by a fatal error. Nodes without a terminal
// result are recorded as skipped first, so even a failed run enumerates
// every step of the plan.
func (o *Orchestrator) failRun(run *runContext, outcome *Outcome, err error) *Outcome {
	for _, n := range run.plan.Nodes {
		if !run.state.Terminal(n.ID) {
			run.state.Record(routine.NewSkipped(n.ID, reasonNotReached))
		}
	}
	o.summarize(run, outcome)
	return outcome.fail(err)
}

// summarize copies every recorded result into the outcome, in record
// order.
func (o *Orchestrator) summarize(run *runContext, outcome *Outcome) {
	for _, res := range run.state.Results() {
		outcome.Steps = append(outcome.Steps, StepSummary{
			NodeID:   res.NodeID,
			Status:   res.Status,
			Reason:   res.Reason,
			Attempts: res.Attempts,
			Outputs:  res.Outputs,
		})
	}
}

// stage collects a success's outputs under their stored parameter names.
func (o *Orchestrator) stage(run *runContext, node *routine.Node, res *routine.Result) {
	for name, val := range res.Outputs {
		run.staged[paramName(node.Transition, name)] = val
	}
}

// commitStaged writes the staged set atomically and folds it into the
// outcome's diff. A rejected commit fails the run; earlier commits stand.
func (o *Orchestrator) commitStaged(ctx context.Context, run *runContext, outcome *Outcome) error {
	if len(run.staged) == 0 {
		return nil
	}
	if err := o.store.Commit(ctx, outcome.QubitID, run.staged); err != nil {
		return fmt.Errorf("failed to commit %d parameters (already committed: %d): %w",
			len(run.staged), len(outcome.Committed), err)
	}

	ctxlog.FromContext(ctx).Info("💾 Committed calibration parameters.", "count", len(run.staged))
	outcome.Committed.Merge(run.staged)
	run.staged = make(map[string]float64)
	return nil
}

// paramName is the stored name of one fitted output, e.g. "ge_pi_amp".
func paramName(transition, output string) string {
	return transition + "_" + output
}
