package formula

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// evalFuncs is the closed function whitelist available to formulas.
// Configuration text must not be able to reach anything beyond arithmetic
// over its bindings, so nothing else is ever added to the eval context.
var evalFuncs = map[string]function.Function{
	"min": stdlib.MinFunc,
	"max": stdlib.MaxFunc,
}

// Parse turns formula source text into an evaluable expression. It returns
// a *SyntaxError when the text is not a well-formed expression.
func Parse(src string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "<formula>", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, &SyntaxError{Formula: src, Detail: diags.Error()}
	}
	return expr, nil
}

// Evaluate resolves an expression against the given bindings. It is a pure
// function of (expr, bindings): the evaluation context contains exactly the
// bindings plus the min/max whitelist, and repeated calls with identical
// inputs produce identical results.
//
// A reference to a symbol absent from bindings yields *UnboundSymbolError.
// Any other evaluation problem (unknown function, type mismatch) yields
// *SyntaxError, since it indicates malformed configuration rather than a
// missing measurement.
func Evaluate(expr hcl.Expression, bindings map[string]cty.Value) (cty.Value, error) {
	if err := checkBindings(expr, bindings); err != nil {
		return cty.NilVal, err
	}

	val, diags := expr.Value(&hcl.EvalContext{
		Variables: bindings,
		Functions: evalFuncs,
	})
	if diags.HasErrors() {
		return cty.NilVal, &SyntaxError{Formula: SourceText(expr), Detail: diags.Error()}
	}
	return val, nil
}

// EvaluateNumber evaluates an expression and converts the result to a
// float64. Non-numeric results are reported as *SyntaxError.
func EvaluateNumber(expr hcl.Expression, bindings map[string]cty.Value) (float64, error) {
	val, err := Evaluate(expr, bindings)
	if err != nil {
		return 0, err
	}
	num, convErr := convert.Convert(val, cty.Number)
	if convErr != nil {
		return 0, &SyntaxError{
			Formula: SourceText(expr),
			Detail:  fmt.Sprintf("result is not numeric: %s", convErr),
		}
	}
	f, _ := num.AsBigFloat().Float64()
	return f, nil
}

// IsFormula reports whether an expression references any symbols. Constant
// expressions (including constant min/max applications) are resolvable
// without bindings and are treated as literals by the settings layer.
func IsFormula(expr hcl.Expression) bool {
	return len(expr.Variables()) > 0
}

// checkBindings walks every variable traversal in the expression and
// verifies it resolves inside the bindings, descending through object
// attributes so that a dangling `step.rabi.missing` is caught with its
// full dotted path rather than a generic evaluation failure.
func checkBindings(expr hcl.Expression, bindings map[string]cty.Value) error {
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		val, ok := bindings[root]
		if !ok {
			return &UnboundSymbolError{Symbol: root, Formula: SourceText(expr)}
		}

		path := root
		for _, step := range traversal[1:] {
			attr, isAttr := step.(hcl.TraverseAttr)
			if !isAttr {
				break
			}
			if !val.Type().IsObjectType() {
				break
			}
			path += "." + attr.Name
			if !val.Type().HasAttribute(attr.Name) {
				return &UnboundSymbolError{Symbol: path, Formula: SourceText(expr)}
			}
			val = val.GetAttr(attr.Name)
		}
	}
	return nil
}

// SourceText reconstructs a readable rendition of an expression for error
// messages. Parsed expressions do not retain their source bytes, so the
// variable references are rendered instead; errors always also carry the
// offending settings key for context.
func SourceText(expr hcl.Expression) string {
	var refs []string
	for _, t := range expr.Variables() {
		refs = append(refs, TraversalKey(t))
	}
	if len(refs) == 0 {
		return "<constant expression>"
	}
	return fmt.Sprintf("<expression over %s>", strings.Join(refs, ", "))
}

// TraversalKey renders a traversal as its canonical dotted form.
func TraversalKey(traversal hcl.Traversal) string {
	var sb strings.Builder
	sb.WriteString(traversal.RootName())
	for _, step := range traversal[1:] {
		if attr, ok := step.(hcl.TraverseAttr); ok {
			sb.WriteString(".")
			sb.WriteString(attr.Name)
		}
	}
	return sb.String()
}
