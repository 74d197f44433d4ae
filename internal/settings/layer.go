package settings

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/qulab/autocal/internal/formula"
)

// Layer is one immutable scope of settings (global defaults, routine
// defaults, or a step's settings block), built once at routine-load time.
type Layer struct {
	name   string
	values map[string]Value
}

// NewLayer builds an empty named layer. Used by tests and by callers that
// assemble synthetic scopes.
func NewLayer(name string) *Layer {
	return &Layer{name: name, values: make(map[string]Value)}
}

// LayerFromBody builds a layer from the attributes of an HCL body.
// Attributes whose expressions reference no symbols are evaluated
// immediately and stored as literals; the rest are retained as formulas.
// Unknown keys are carried like any other: the engine resolves what it is
// asked for and ignores the rest.
func LayerFromBody(name string, body hcl.Body) (*Layer, error) {
	layer := NewLayer(name)
	if body == nil {
		return layer, nil
	}

	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid settings in %s scope: %s", name, diags.Error())
	}

	for key, attr := range attrs {
		if err := layer.add(key, attr.Expr); err != nil {
			return nil, err
		}
	}
	return layer, nil
}

// Merge overlays other onto the layer; keys in other win. Used to collapse
// repeated defaults blocks into a single scope in document order.
func (l *Layer) Merge(other *Layer) {
	if other == nil {
		return
	}
	for key, val := range other.values {
		l.values[key] = val
	}
}

// Lookup returns the value declared in this layer, if any.
func (l *Layer) Lookup(key string) (Value, bool) {
	v, ok := l.values[key]
	return v, ok
}

// Name returns the scope name used in error messages.
func (l *Layer) Name() string {
	return l.name
}

// Len returns the number of keys declared in this layer.
func (l *Layer) Len() int {
	return len(l.values)
}

func (l *Layer) add(key string, expr hcl.Expression) error {
	if formula.IsFormula(expr) {
		l.values[key] = Value{Key: key, expr: expr}
		return nil
	}

	lit, err := formula.Evaluate(expr, nil)
	if err != nil {
		if syn, ok := err.(*formula.SyntaxError); ok {
			syn.Key = key
		}
		return err
	}
	l.values[key] = Value{Key: key, literal: lit, isLiteral: true}
	return nil
}
