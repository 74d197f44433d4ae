package formula_test

import (
	"testing"

	"github.com/qulab/autocal/internal/formula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func num(f float64) cty.Value { return cty.NumberFloatVal(f) }

func TestEvaluateClippedAmplitude(t *testing.T) {
	// Clipped pi-pulse amplitude: the fitted amplitude scaled for an n-pulse
	// train, capped by the hardware ceiling.
	expr, err := formula.Parse(`min((n + 0.45) * current / n, max)`)
	require.NoError(t, err)

	bindings := map[string]cty.Value{
		"n":       num(1),
		"current": num(0.5),
		"max":     num(0.6),
	}

	got, err := formula.EvaluateNumber(expr, bindings)
	require.NoError(t, err)
	assert.InDelta(t, 0.475, got, 1e-12)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	expr, err := formula.Parse(`max(2 * a - b, a / 4)`)
	require.NoError(t, err)

	bindings := map[string]cty.Value{"a": num(3), "b": num(1)}

	first, err := formula.EvaluateNumber(expr, bindings)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := formula.EvaluateNumber(expr, bindings)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEvaluateNestedBindings(t *testing.T) {
	expr, err := formula.Parse(`step.rabi.pi_amp / hw.v_max`)
	require.NoError(t, err)

	bindings := map[string]cty.Value{
		"step": cty.ObjectVal(map[string]cty.Value{
			"rabi": cty.ObjectVal(map[string]cty.Value{"pi_amp": num(0.3)}),
		}),
		"hw": cty.ObjectVal(map[string]cty.Value{"v_max": num(0.6)}),
	}

	got, err := formula.EvaluateNumber(expr, bindings)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-12)
}

func TestEvaluateUnboundRootSymbol(t *testing.T) {
	expr, err := formula.Parse(`amp * 2`)
	require.NoError(t, err)

	_, err = formula.Evaluate(expr, map[string]cty.Value{})
	var unbound *formula.UnboundSymbolError
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, "amp", unbound.Symbol)
}

func TestEvaluateUnboundNestedSymbol(t *testing.T) {
	expr, err := formula.Parse(`step.rabi.nope + 1`)
	require.NoError(t, err)

	bindings := map[string]cty.Value{
		"step": cty.ObjectVal(map[string]cty.Value{
			"rabi": cty.ObjectVal(map[string]cty.Value{"pi_amp": num(0.3)}),
		}),
	}

	_, err = formula.Evaluate(expr, bindings)
	var unbound *formula.UnboundSymbolError
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, "step.rabi.nope", unbound.Symbol)
}

func TestParseRejectsMalformedText(t *testing.T) {
	_, err := formula.Parse(`min((a + `)
	var syntax *formula.SyntaxError
	require.ErrorAs(t, err, &syntax)
}

func TestEvaluateRejectsUnknownFunction(t *testing.T) {
	expr, err := formula.Parse(`sqrt(a)`)
	require.NoError(t, err)

	_, err = formula.Evaluate(expr, map[string]cty.Value{"a": num(4)})
	var syntax *formula.SyntaxError
	require.ErrorAs(t, err, &syntax)
}

func TestIsFormula(t *testing.T) {
	constant, err := formula.Parse(`min(0.95 * 0.5, 0.6)`)
	require.NoError(t, err)
	assert.False(t, formula.IsFormula(constant))

	ref, err := formula.Parse(`hw.v_max`)
	require.NoError(t, err)
	assert.True(t, formula.IsFormula(ref))
}
