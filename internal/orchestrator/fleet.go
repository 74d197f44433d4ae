package orchestrator

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/qulab/autocal/internal/ctxlog"
	"github.com/qulab/autocal/internal/routine"
)

// RunMany calibrates several qubits concurrently with the same plan, at
// most maxParallel runs in flight. Each qubit's parameter set is owned
// exclusively by its run, so runs never coordinate; qubit IDs must be
// distinct. Outcomes are returned in qubit-ID order regardless of
// completion order.
func (o *Orchestrator) RunMany(ctx context.Context, plan *routine.Plan, qubitIDs []string, maxParallel int) []*Outcome {
	logger := ctxlog.FromContext(ctx)
	if maxParallel <= 0 {
		maxParallel = 1
	}
	logger.Info("🧮 Starting fleet calibration.",
		"routine", plan.Routine, "qubits", len(qubitIDs), "max_parallel", maxParallel)

	var mu sync.Mutex
	outcomes := make(map[string]*Outcome, len(qubitIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, qubitID := range qubitIDs {
		qubitID := qubitID
		g.Go(func() error {
			out := o.Run(gctx, plan, qubitID)
			mu.Lock()
			outcomes[qubitID] = out
			mu.Unlock()
			return nil
		})
	}
	// Workers only report through the outcomes map; a run failure is an
	// outcome, not a group error.
	_ = g.Wait()

	sorted := append([]string(nil), qubitIDs...)
	sort.Strings(sorted)
	result := make([]*Outcome, 0, len(sorted))
	for _, qubitID := range sorted {
		if out, ok := outcomes[qubitID]; ok {
			result = append(result, out)
		}
	}
	return result
}
