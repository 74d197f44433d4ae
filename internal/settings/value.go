package settings

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/qulab/autocal/internal/formula"
	"github.com/zclconf/go-cty/cty"
)

// Value is a single setting: either a literal resolved once at load time,
// or a formula re-evaluated per step against a binding environment. The
// split is decided syntactically when the layer is built, never by probing
// types at resolution time.
type Value struct {
	// Key is the settings key this value was declared under.
	Key string

	expr    hcl.Expression
	literal cty.Value
	isLiteral bool
}

// IsFormula reports whether the value must be evaluated against bindings.
func (v Value) IsFormula() bool {
	return !v.isLiteral
}

// Resolve produces the concrete value. Literals return their load-time
// value untouched; formulas are evaluated against the given bindings.
// Formula errors are annotated with the settings key.
func (v Value) Resolve(bindings map[string]cty.Value) (cty.Value, error) {
	if v.isLiteral {
		return v.literal, nil
	}

	val, err := formula.Evaluate(v.expr, bindings)
	if err != nil {
		switch e := err.(type) {
		case *formula.SyntaxError:
			e.Key = v.Key
		case *formula.UnboundSymbolError:
			e.Key = v.Key
		}
		return cty.NilVal, err
	}
	return val, nil
}
