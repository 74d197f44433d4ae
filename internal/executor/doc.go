// Package executor runs individual plan nodes: it evaluates the node's
// skip predicates against recorded results, resolves the settings chain
// including formula-valued settings, invokes the measurement backend with
// a local retry loop for transient faults, and validates the fitted
// output set against the experiment's declared contract.
package executor
