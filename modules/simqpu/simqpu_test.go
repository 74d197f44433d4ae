package simqpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qulab/autocal/internal/measure"
)

func TestRegister_CoversEveryCoreExperiment(t *testing.T) {
	reg := measure.NewRegistry()
	(&Module{}).Register(reg)

	require.NoError(t, reg.Validate(context.Background()))
}

func TestRun_IsDeterministicPerQubit(t *testing.T) {
	reg := measure.NewRegistry()
	(&Module{}).Register(reg)

	runner, ok := reg.Runner("rabi")
	require.True(t, ok)

	req := measure.Request{Experiment: "rabi", Transition: "ge", QubitID: "q0"}
	first, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := runner.Run(context.Background(), measure.Request{
		Experiment: "rabi", Transition: "ge", QubitID: "q1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first["pi_amp"], other["pi_amp"])
}

func TestRun_OutputsMatchDeclaredContracts(t *testing.T) {
	reg := measure.NewRegistry()
	(&Module{}).Register(reg)

	for _, experiment := range reg.Experiments() {
		def, _ := reg.Definition(experiment)
		runner, ok := reg.Runner(experiment)
		require.True(t, ok, experiment)

		outputs, err := runner.Run(context.Background(), measure.Request{
			Experiment: experiment, Transition: "ge", QubitID: "q0",
		})
		require.NoError(t, err, experiment)
		require.Len(t, outputs, len(def.Outputs), experiment)
		for _, name := range def.Outputs {
			assert.Contains(t, outputs, name, experiment)
		}
	}
}

func TestRun_FailureInjectionProducesQualityErrors(t *testing.T) {
	reg := measure.NewRegistry()
	(&Module{FailureRate: 1.0}).Register(reg)

	runner, _ := reg.Runner("rabi")
	_, err := runner.Run(context.Background(), measure.Request{
		Experiment: "rabi", Transition: "ge", QubitID: "q0",
	})
	require.Error(t, err)

	var mErr *measure.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, measure.KindFitNotConverged, mErr.Kind)
	assert.False(t, mErr.Kind.Transient())
}
