package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoutine = `
	defaults {
		amp_ceiling = 0.6
	}

	routine "smoke" {
		general {
			transitions = ["ge"]
			update      = true
		}
		step "rabi" {}
		step "ramsey" {
			settings {
				freq_estimate = 5.0e9
			}
		}
	}
`

func writeRoutines(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routines.hcl"), []byte(src), 0o644))
	return dir
}

func TestRun_EndToEndWithSimulatedBackend(t *testing.T) {
	cfg, err := NewConfig(Config{
		RoutinesPath: writeRoutines(t, testRoutine),
		Routine:      "smoke",
		Qubits:       []string{"q0", "q1"},
		MaxParallel:  2,
	})
	require.NoError(t, err)

	testApp, _ := SetupAppTest(t, cfg)
	require.NoError(t, testApp.Run(context.Background()))

	// Both qubits committed their fitted parameters to the store.
	for _, qubit := range cfg.Qubits {
		val, err := testApp.store.Read(context.Background(), qubit, "ge_pi_amp")
		require.NoError(t, err, qubit)
		assert.Greater(t, val, 0.0)
		assert.LessOrEqual(t, val, 0.6, "amplitude ceiling from global defaults must hold")
	}
}

func TestRun_GraphExportWritesDOTWithoutMeasuring(t *testing.T) {
	graphPath := filepath.Join(t.TempDir(), "plan.dot")
	cfg, err := NewConfig(Config{
		RoutinesPath: writeRoutines(t, testRoutine),
		Routine:      "smoke",
		GraphPath:    graphPath,
	})
	require.NoError(t, err)

	testApp, _ := SetupAppTest(t, cfg)
	require.NoError(t, testApp.Run(context.Background()))

	data, err := os.ReadFile(graphPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rabi@ge")

	_, err = testApp.store.Read(context.Background(), "q0", "ge_pi_amp")
	require.Error(t, err, "graph export must not run any measurement")
}

func TestNewApp_RejectsUnknownRoutineDocuments(t *testing.T) {
	dir := writeRoutines(t, `routine "smoke" { not valid hcl`)
	cfg, err := NewConfig(Config{
		RoutinesPath: dir,
		Routine:      "smoke",
		Qubits:       []string{"q0"},
	})
	require.NoError(t, err)

	_, err = NewApp(context.Background(), &SafeBuffer{}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routines.hcl")
}

func TestRun_UnknownRoutineNameFailsWithDeclaredNames(t *testing.T) {
	cfg, err := NewConfig(Config{
		RoutinesPath: writeRoutines(t, testRoutine),
		Routine:      "weekly",
		Qubits:       []string{"q0"},
	})
	require.NoError(t, err)

	testApp, _ := SetupAppTest(t, cfg)
	err = testApp.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "smoke"))
}
