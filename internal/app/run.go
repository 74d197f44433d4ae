package app

import (
	"context"
	"fmt"
	"os"

	"github.com/qulab/autocal/internal/ctxlog"
	"github.com/qulab/autocal/internal/executor"
	"github.com/qulab/autocal/internal/orchestrator"
	"github.com/qulab/autocal/internal/routine"
)

// Run executes the configured routine against every requested qubit.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		go a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	a.logger.Debug("Building routine plan from loaded documents.")
	plan, err := routine.Build(ctx, a.bundle, a.config.Routine, a.registry)
	if err != nil {
		return fmt.Errorf("failed to build routine plan: %w", err)
	}
	a.logger.Debug("Routine plan built.", "node_count", len(plan.Nodes))

	if a.config.GraphPath != "" {
		return a.writeGraph(plan)
	}

	orch := orchestrator.New(executor.New(a.registry), a.store, a.hw, a.metrics)

	a.logger.Info("🚀 Starting calibration.",
		"routine", plan.Routine, "qubits", len(a.config.Qubits), "max_parallel", a.config.MaxParallel)
	outcomes := orch.RunMany(ctx, plan, a.config.Qubits, a.config.MaxParallel)
	a.logger.Info("🏁 Calibration finished.")

	a.printSummary(outcomes)
	return overallError(outcomes)
}

// writeGraph renders the expanded plan as Graphviz DOT instead of running.
func (a *App) writeGraph(plan *routine.Plan) error {
	f, err := os.Create(a.config.GraphPath)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	defer f.Close()

	if err := plan.ExportDOT(f); err != nil {
		return err
	}
	a.logger.Info("📈 Plan graph written.", "path", a.config.GraphPath, "nodes", len(plan.Nodes))
	return nil
}

// overallError folds the per-qubit outcomes into the process exit verdict.
// Warnings do not fail the invocation; aborts and fatal errors do.
func overallError(outcomes []*orchestrator.Outcome) error {
	bad := 0
	for _, out := range outcomes {
		if out.Err != nil {
			return fmt.Errorf("calibration of %s failed: %w", out.QubitID, out.Err)
		}
		if out.Status == orchestrator.RunAborted {
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d qubit runs aborted", bad, len(outcomes))
	}
	return nil
}
