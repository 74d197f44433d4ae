package measure_test

import (
	"context"
	"testing"

	"github.com/qulab/autocal/internal/measure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopRunner() measure.Runner {
	return measure.RunnerFunc(func(ctx context.Context, req measure.Request) (measure.Outputs, error) {
		return measure.Outputs{}, nil
	})
}

func TestValidateRequiresBackendForEveryDefinition(t *testing.T) {
	r := measure.NewRegistry()

	err := r.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `experiment "rabi" has no registered measurement backend`)

	for _, exp := range r.Experiments() {
		r.RegisterRunner(exp, noopRunner())
	}
	require.NoError(t, r.Validate(context.Background()))
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	r := measure.NewRegistry()
	for _, exp := range r.Experiments() {
		r.RegisterRunner(exp, noopRunner())
	}
	r.RegisterRunner("flux_crosstalk", noopRunner())

	err := r.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown experiment "flux_crosstalk"`)
}

func TestKindClassification(t *testing.T) {
	assert.True(t, measure.KindTimeout.Transient())
	assert.True(t, measure.KindComm.Transient())
	assert.False(t, measure.KindFitNotConverged.Transient())
	assert.False(t, measure.KindOutOfRange.Transient())

	// Anything outside the enum counts as a quality failure so ambiguous
	// cases are never auto-retried.
	assert.False(t, measure.Kind(99).Transient())
}

func TestCoreDefinitionsDeclareOutputs(t *testing.T) {
	r := measure.NewRegistry()

	def, ok := r.Definition("rabi")
	require.True(t, ok)
	assert.Equal(t, []string{"pi_amp", "pi_half_amp"}, def.Outputs)

	def, ok = r.Definition("ramsey")
	require.True(t, ok)
	assert.Contains(t, def.Outputs, "ad")
}
