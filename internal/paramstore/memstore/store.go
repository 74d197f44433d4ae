// Package memstore provides an ephemeral, thread-safe, in-memory
// implementation of the paramstore.Store interface.
//
// It backs local development, simulated-hardware runs, and tests. Unlike a
// per-key concurrent map, the store serializes commits under one mutex:
// Commit must expose either all of a step's outputs or none of them, so
// multi-key writes have to be applied as a unit.
package memstore

import (
	"context"
	"sync"

	"github.com/qulab/autocal/internal/paramstore"
)

// Store is an in-memory paramstore.Store keyed by qubit then parameter.
type Store struct {
	mu     sync.RWMutex
	qubits map[string]map[string]float64
}

// New creates a new, empty in-memory parameter store.
func New() *Store {
	return &Store{qubits: make(map[string]map[string]float64)}
}

// Seed pre-populates a qubit's parameters, replacing any existing values.
// Test and simulation convenience; not part of paramstore.Store.
func (s *Store) Seed(qubitID string, params map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]float64, len(params))
	for name, val := range params {
		merged[name] = val
	}
	s.qubits[qubitID] = merged
}

// Read returns one stored parameter value.
func (s *Store) Read(ctx context.Context, qubitID, name string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.qubits[qubitID][name]
	if !ok {
		return 0, paramstore.ErrNotFound
	}
	return val, nil
}

// Snapshot returns a copy of all stored parameters for a qubit.
func (s *Store) Snapshot(ctx context.Context, qubitID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]float64, len(s.qubits[qubitID]))
	for name, val := range s.qubits[qubitID] {
		snap[name] = val
	}
	return snap, nil
}

// Commit atomically writes a set of parameters for a qubit.
func (s *Store) Commit(ctx context.Context, qubitID string, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.qubits[qubitID] == nil {
		s.qubits[qubitID] = make(map[string]float64, len(params))
	}
	for name, val := range params {
		s.qubits[qubitID][name] = val
	}
	return nil
}
