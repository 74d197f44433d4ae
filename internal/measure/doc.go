// Package measure defines the boundary to the measurement collaborator:
// the request/response contract for running one characterization
// experiment, the failure taxonomy that drives retry policy, and the
// registry pairing experiment definitions (declared fitted outputs) with
// the backends that produce them.
package measure
