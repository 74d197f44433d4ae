// Package orchestrator drives routine plans end to end: it walks the
// plan's nodes strictly in order, delegates each node to the executor,
// stages validated outputs, and commits them atomically to the qubit
// parameter store. Failed required steps abort the run unless a fallback
// recovers them; already-committed parameters always survive an abort.
package orchestrator
