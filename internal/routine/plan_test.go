package routine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qulab/autocal/internal/measure"
)

func loadBundle(t *testing.T, src string) *Bundle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routines.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	bundle, err := LoadFiles(context.Background(), path)
	require.NoError(t, err)
	return bundle
}

func buildPlan(t *testing.T, src, name string) *Plan {
	t.Helper()
	plan, err := Build(context.Background(), loadBundle(t, src), name, measure.NewRegistry())
	require.NoError(t, err)
	return plan
}

func nodeIDs(p *Plan) []string {
	ids := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestBuild_ExpandsTransitionsInDeclaredOrder(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge", "ef"]
			}
			step "rabi" {}
			step "ramsey" {}
		}
	`, "nightly")

	assert.Equal(t, []string{"rabi@ge", "ramsey@ge", "rabi@ef", "ramsey@ef"}, nodeIDs(plan))
}

func TestBuild_RepeatsDuplicateTheTransitionGroup(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
				repeats     = { ge = 2 }
			}
			step "rabi" {}
		}
	`, "nightly")

	assert.Equal(t, []string{"rabi@ge", "rabi@ge#2"}, nodeIDs(plan))
	assert.Equal(t, 2, plan.Nodes[1].Iteration)
}

func TestBuild_TransitionRestrictionSkipsOtherGroups(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge", "ef"]
			}
			step "rabi" {}
			step "mixer_calib" {
				transitions = ["ge"]
			}
		}
	`, "nightly")

	assert.Equal(t, []string{"rabi@ge", "mixer_calib@ge", "rabi@ef"}, nodeIDs(plan))
}

func TestBuild_FallbackScheduledDirectlyAfterParent(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "rabi" {
				fallback = "rabi_wide"
			}
			step "rabi_wide" {
				experiment = "rabi"
				auto       = false
			}
			step "ramsey" {}
		}
	`, "nightly")

	require.Equal(t, []string{"rabi@ge", "rabi_wide@ge", "ramsey@ge"}, nodeIDs(plan))

	parent, ok := plan.Node("rabi@ge")
	require.True(t, ok)
	fb, ok := plan.Node("rabi_wide@ge")
	require.True(t, ok)

	assert.Equal(t, "rabi_wide@ge", parent.FallbackID)
	assert.Equal(t, "rabi@ge", fb.FallbackFor)
	assert.Equal(t, "rabi", fb.Experiment)
}

func TestBuild_FallbackKeepsItsOwnEnableFlag(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
				rabi_wide   = false
			}
			step "rabi" {
				fallback = "rabi_wide"
			}
			step "rabi_wide" {
				experiment = "rabi"
				auto       = false
			}
		}
	`, "nightly")

	parent, ok := plan.Node("rabi@ge")
	require.True(t, ok)
	assert.True(t, parent.Enabled)

	fb, ok := plan.Node("rabi_wide@ge")
	require.True(t, ok)
	assert.False(t, fb.Enabled, "fallback must be independently switchable")
}

func TestBuild_FallbackHonorsItsTransitionRestriction(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge", "ef"]
			}
			step "rabi" {
				fallback = "rabi_wide"
			}
			step "rabi_wide" {
				experiment  = "rabi"
				auto        = false
				transitions = ["ge"]
			}
		}
	`, "nightly")

	assert.Equal(t, []string{"rabi@ge", "rabi_wide@ge", "rabi@ef"}, nodeIDs(plan))

	ge, _ := plan.Node("rabi@ge")
	assert.Equal(t, "rabi_wide@ge", ge.FallbackID)
	ef, _ := plan.Node("rabi@ef")
	assert.Empty(t, ef.FallbackID, "no fallback outside its allowed transitions")
}

func TestBuild_FallbackMustOptOutOfTheSchedule(t *testing.T) {
	_, err := Build(context.Background(), loadBundle(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "rabi" {
				fallback = "rabi_wide"
			}
			step "rabi_wide" {
				experiment = "rabi"
			}
		}
	`), "nightly", measure.NewRegistry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto = false")
}

func TestBuild_FallbackClaimedByTwoParentsIsRejected(t *testing.T) {
	_, err := Build(context.Background(), loadBundle(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "rabi" {
				fallback = "rescue"
			}
			step "ramsey" {
				fallback = "rescue"
			}
			step "rescue" {
				experiment = "rabi"
				auto       = false
			}
		}
	`), "nightly", measure.NewRegistry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "claimed by both")
}

func TestBuild_UnknownExperimentIsRejected(t *testing.T) {
	_, err := Build(context.Background(), loadBundle(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "levitate" {}
		}
	`), "nightly", measure.NewRegistry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown experiment")
}

func TestBuild_UnknownRoutineListsDeclaredNames(t *testing.T) {
	_, err := Build(context.Background(), loadBundle(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "rabi" {}
		}
	`), "weekly", measure.NewRegistry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nightly")
}

func TestBuild_BackwardGateCreatesCycle(t *testing.T) {
	_, err := Build(context.Background(), loadBundle(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "rabi" {
				after = ["ramsey"]
			}
			step "ramsey" {}
		}
	`), "nightly", measure.NewRegistry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuild_DisabledFlagCarriesToEveryInstance(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge", "ef"]
				ramsey      = false
			}
			step "rabi" {}
			step "ramsey" {}
		}
	`, "nightly")

	for _, id := range []string{"ramsey@ge", "ramsey@ef"} {
		n, ok := plan.Node(id)
		require.True(t, ok)
		assert.False(t, n.Enabled, id)
	}
	rabi, _ := plan.Node("rabi@ge")
	assert.True(t, rabi.Enabled)
}

func TestNext_WalksNodesInOrderUntilComplete(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "rabi" {}
			step "ramsey" {}
		}
	`, "nightly")

	st := NewRunState(nil, nil)
	require.Equal(t, "rabi@ge", plan.Next(st).ID)

	st.Record(NewSuccess("rabi@ge", map[string]float64{"pi_amp": 0.5, "pi_half_amp": 0.25}, 1))
	require.Equal(t, "ramsey@ge", plan.Next(st).ID)

	st.Record(NewSkipped("ramsey@ge", "disabled"))
	assert.Nil(t, plan.Next(st))
	assert.True(t, plan.Complete(st))
}

func TestBindings_ExposePriorOutputsOfTheSameTransition(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge", "ef"]
			}
			step "rabi" {}
			step "ramsey" {}
		}
	`, "nightly")

	st := NewRunState(
		map[string]float64{"max_amp": 0.6},
		map[string]float64{"ge_freq": 5.1e9},
	)
	st.Record(NewSuccess("rabi@ge", map[string]float64{"pi_amp": 0.5, "pi_half_amp": 0.25}, 1))
	st.Record(NewSuccess("ramsey@ge", map[string]float64{"freq": 5.1e9, "ad": 1e5, "t2_star": 12e-6}, 1))

	ramseyEF, ok := plan.Node("ramsey@ef")
	require.True(t, ok)
	vars := plan.Bindings(st, ramseyEF)

	steps := vars["step"]
	assert.False(t, steps.Type().HasAttribute("rabi"), "ge results must not leak into the ef group")

	st.Record(NewSuccess("rabi@ef", map[string]float64{"pi_amp": 0.31, "pi_half_amp": 0.16}, 1))

	vars = plan.Bindings(st, ramseyEF)
	steps = vars["step"]
	require.True(t, steps.Type().HasAttribute("rabi"))
	amp := steps.GetAttr("rabi").GetAttr("pi_amp")
	f, _ := amp.AsBigFloat().Float64()
	assert.InDelta(t, 0.31, f, 1e-12)

	hw := vars["hw"]
	require.True(t, hw.Type().HasAttribute("max_amp"))
	qubit := vars["qubit"]
	require.True(t, qubit.Type().HasAttribute("ge_freq"))
}

func TestBindings_LatestIterationWins(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
				repeats     = { ge = 2 }
			}
			step "rabi" {}
			step "ramsey" {}
		}
	`, "nightly")

	st := NewRunState(nil, nil)
	st.Record(NewSuccess("rabi@ge", map[string]float64{"pi_amp": 0.50, "pi_half_amp": 0.25}, 1))
	st.Record(NewSkipped("ramsey@ge", "disabled"))
	st.Record(NewSuccess("rabi@ge#2", map[string]float64{"pi_amp": 0.48, "pi_half_amp": 0.24}, 1))

	ramsey2, ok := plan.Node("ramsey@ge#2")
	require.True(t, ok)
	vars := plan.Bindings(st, ramsey2)

	amp := vars["step"].GetAttr("rabi").GetAttr("pi_amp")
	f, _ := amp.AsBigFloat().Float64()
	assert.InDelta(t, 0.48, f, 1e-12)
}

func TestBuild_SettingsChainsLayerStepOverRoutineOverGlobal(t *testing.T) {
	plan := buildPlan(t, `
		defaults {
			averages = 1000
			span     = 1.0
		}
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			defaults {
				span = 0.5
			}
			step "rabi" {
				settings {
					averages = 4000
				}
			}
		}
	`, "nightly")

	rabi, ok := plan.Node("rabi@ge")
	require.True(t, ok)

	averages, err := rabi.Chain.Number("averages", nil)
	require.NoError(t, err)
	assert.InDelta(t, 4000, averages, 1e-9)

	span, err := rabi.Chain.Number("span", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, span, 1e-9)
}

func TestExportDOT_RendersEveryNode(t *testing.T) {
	plan := buildPlan(t, `
		routine "nightly" {
			general {
				transitions = ["ge"]
			}
			step "rabi" {}
			step "ramsey" {}
		}
	`, "nightly")

	var sb strings.Builder
	require.NoError(t, plan.ExportDOT(&sb))

	out := sb.String()
	assert.Contains(t, out, "rabi@ge")
	assert.Contains(t, out, "ramsey@ge")
}
