// Package paramstore defines the contract to the persistent qubit
// parameter set. The engine is a disciplined client: only the orchestrator
// writes, each commit is atomic per qubit, and a commit carries a full
// step-output set - parameters are never partially overwritten.
package paramstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a qubit has no stored value for a
// parameter name.
var ErrNotFound = errors.New("paramstore: parameter not found")

// Store is the persistence collaborator for validated calibration values.
//
// Commit must be atomic from the engine's perspective: either every entry
// of params becomes visible or none does. The engine assumes exclusive
// ownership of a qubit's parameters for the duration of one routine run;
// runs for distinct qubits may commit concurrently.
type Store interface {
	// Read returns one stored parameter value.
	Read(ctx context.Context, qubitID, name string) (float64, error)

	// Snapshot returns all stored parameters for a qubit. Used to seed the
	// `qubit.` binding namespace and to detect already-committed steps.
	Snapshot(ctx context.Context, qubitID string) (map[string]float64, error)

	// Commit atomically writes a set of parameters for a qubit.
	Commit(ctx context.Context, qubitID string, params map[string]float64) error
}

// Diff records what a run actually committed, parameter name to value.
type Diff map[string]float64

// Merge folds another committed set into the diff.
func (d Diff) Merge(params map[string]float64) {
	for name, val := range params {
		d[name] = val
	}
}
