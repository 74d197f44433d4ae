// Package simqpu is a simulated measurement backend: a deterministic
// stand-in for the instrument stack used in local development, CI, and
// dry runs of routine documents. Fitted outputs are computed from the
// qubit ID and the resolved settings, so identical runs produce identical
// calibrations.
package simqpu

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/qulab/autocal/internal/measure"
)

// Module registers the simulated backends for every core experiment.
type Module struct {
	// FailureRate injects quality failures: a step fails when its
	// per-node hash lands below this threshold in [0, 1). Zero keeps the
	// simulator fully green.
	FailureRate float64
}

// Register implements measure.Module.
func (m *Module) Register(r *measure.Registry) {
	r.RegisterRunner("rabi", m.runner(func(q *qpu, req measure.Request) measure.Outputs {
		pi := clamp(0.3+0.3*q.noise("pi_amp"), 0.05, req.Setting("amp_ceiling", 1.0))
		return measure.Outputs{"pi_amp": pi, "pi_half_amp": pi / 2}
	}))
	r.RegisterRunner("ramsey", m.runner(func(q *qpu, req measure.Request) measure.Outputs {
		base := req.Setting("freq_estimate", 5.0e9)
		ad := 2e6 * (q.noise("ad") - 0.5)
		return measure.Outputs{
			"freq":    base + ad,
			"ad":      ad,
			"t2_star": 5e-6 + 20e-6*q.noise("t2_star"),
		}
	}))
	r.RegisterRunner("qscale", m.runner(func(q *qpu, _ measure.Request) measure.Outputs {
		return measure.Outputs{"qscale": 0.1 * (q.noise("qscale") - 0.5)}
	}))
	r.RegisterRunner("t1", m.runner(func(q *qpu, _ measure.Request) measure.Outputs {
		return measure.Outputs{"t1": 20e-6 + 80e-6*q.noise("t1")}
	}))
	r.RegisterRunner("echo", m.runner(func(q *qpu, _ measure.Request) measure.Outputs {
		return measure.Outputs{"t2_echo": 10e-6 + 40e-6*q.noise("t2_echo")}
	}))
	r.RegisterRunner("mixer_calib", m.runner(func(q *qpu, _ measure.Request) measure.Outputs {
		return measure.Outputs{
			"offset_i":       0.02 * (q.noise("offset_i") - 0.5),
			"offset_q":       0.02 * (q.noise("offset_q") - 0.5),
			"sideband_phase": math.Pi * (q.noise("sideband_phase") - 0.5),
		}
	}))
}

type fitFunc func(q *qpu, req measure.Request) measure.Outputs

func (m *Module) runner(fit fitFunc) measure.Runner {
	return measure.RunnerFunc(func(ctx context.Context, req measure.Request) (measure.Outputs, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q := &qpu{qubitID: req.QubitID, experiment: req.Experiment, transition: req.Transition}
		if m.FailureRate > 0 && q.noise("fit_quality") < m.FailureRate {
			return nil, measure.Errf(measure.KindFitNotConverged, req.Experiment,
				"simulated fit rejection for qubit %s", req.QubitID)
		}
		return fit(q, req), nil
	})
}

// qpu derives deterministic pseudo-measurements for one request.
type qpu struct {
	qubitID    string
	experiment string
	transition string
}

// noise returns a stable value in [0, 1) keyed by qubit, experiment,
// transition, and label.
func (q *qpu) noise(label string) float64 {
	h := fnv.New64a()
	h.Write([]byte(q.qubitID))
	h.Write([]byte{0})
	h.Write([]byte(q.experiment))
	h.Write([]byte{0})
	h.Write([]byte(q.transition))
	h.Write([]byte{0})
	h.Write([]byte(label))
	return float64(h.Sum64()%1_000_000) / 1_000_000
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
