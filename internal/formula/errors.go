package formula

import "fmt"

// SyntaxError reports formula text that does not parse or does not
// evaluate as a restricted arithmetic expression. It is fatal for the run:
// the configuration itself is malformed.
type SyntaxError struct {
	// Key is the settings key the formula was assigned to, when known.
	Key string
	// Formula is the offending formula text or a rendition of it.
	Formula string
	// Detail carries the underlying parser or evaluator message.
	Detail string
}

func (e *SyntaxError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("malformed formula for %q (%s): %s", e.Key, e.Formula, e.Detail)
	}
	return fmt.Sprintf("malformed formula %s: %s", e.Formula, e.Detail)
}

// UnboundSymbolError reports a formula referencing a symbol that is absent
// from the binding environment. Like SyntaxError it is fatal: the plan
// references a value no prior step or constant provides.
type UnboundSymbolError struct {
	// Key is the settings key the formula was assigned to, when known.
	Key string
	// Symbol is the dotted path of the unresolved reference.
	Symbol string
	// Formula is a rendition of the offending formula.
	Formula string
}

func (e *UnboundSymbolError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("formula for %q references unbound symbol %q", e.Key, e.Symbol)
	}
	return fmt.Sprintf("formula references unbound symbol %q", e.Symbol)
}
