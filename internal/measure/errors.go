package measure

import "fmt"

// Kind classifies a measurement failure. The split drives the retry
// policy: transient kinds may be re-attempted with unchanged settings,
// quality kinds never are - auto-retrying a non-convergent fit would mask
// a genuinely miscalibrated device.
type Kind int

const (
	// KindTimeout is an instrument timeout. Transient.
	KindTimeout Kind = iota
	// KindComm is an instrument communication fault. Transient.
	KindComm
	// KindFitNotConverged means the analysis could not fit the trace.
	KindFitNotConverged
	// KindOutOfRange means the fit converged to a physically implausible
	// value.
	KindOutOfRange
)

// Transient reports whether the failure may be retried locally. Anything
// not explicitly known to be transient counts as a quality failure.
func (k Kind) Transient() bool {
	return k == KindTimeout || k == KindComm
}

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindComm:
		return "communication fault"
	case KindFitNotConverged:
		return "fit did not converge"
	case KindOutOfRange:
		return "result out of physical bounds"
	default:
		return "unknown failure"
	}
}

// Error is the structured failure a Runner returns in place of outputs.
type Error struct {
	Kind       Kind
	Experiment string
	Reason     string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s measurement failed: %s (%s)", e.Experiment, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s measurement failed: %s", e.Experiment, e.Kind)
}

// Errf builds a measurement Error with a formatted reason.
func Errf(kind Kind, experiment, format string, args ...any) *Error {
	return &Error{Kind: kind, Experiment: experiment, Reason: fmt.Sprintf(format, args...)}
}
