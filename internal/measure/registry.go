package measure

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/qulab/autocal/internal/ctxlog"
)

// Definition declares an experiment type: its name and the exact set of
// fitted output parameters a successful run must produce. Definitions are
// the engine-side contract; a result with a different output set is a
// configuration error, never a silent partial result.
type Definition struct {
	Experiment  string
	Description string
	Outputs     []string
}

// Module is implemented by packages that contribute measurement backends
// to a registry instance.
type Module interface {
	Register(r *Registry)
}

// Registry holds the experiment definitions and the runners bound to them
// for a single application instance.
type Registry struct {
	definitions map[string]Definition
	runners     map[string]Runner
}

// NewRegistry creates a registry pre-populated with the core experiment
// definitions. Runners are contributed separately by modules.
func NewRegistry() *Registry {
	r := &Registry{
		definitions: make(map[string]Definition),
		runners:     make(map[string]Runner),
	}
	for _, def := range coreDefinitions {
		r.definitions[def.Experiment] = def
	}
	return r
}

// coreDefinitions are the characterization experiments the engine knows.
// Output names are the fitted parameters the analysis stage extracts.
var coreDefinitions = []Definition{
	{
		Experiment:  "rabi",
		Description: "Drive-amplitude sweep; fits the pi and pi-half pulse amplitudes.",
		Outputs:     []string{"pi_amp", "pi_half_amp"},
	},
	{
		Experiment:  "ramsey",
		Description: "Free-evolution fringe scan; fits frequency, detuning magnitude, and T2*.",
		Outputs:     []string{"freq", "ad", "t2_star"},
	},
	{
		Experiment:  "qscale",
		Description: "DRAG weight calibration; fits the qscale coefficient.",
		Outputs:     []string{"qscale"},
	},
	{
		Experiment:  "t1",
		Description: "Relaxation decay scan; fits the T1 time.",
		Outputs:     []string{"t1"},
	},
	{
		Experiment:  "echo",
		Description: "Hahn echo scan; fits the T2 echo time.",
		Outputs:     []string{"t2_echo"},
	},
	{
		Experiment:  "mixer_calib",
		Description: "IQ mixer calibration; fits carrier and sideband suppression offsets.",
		Outputs:     []string{"offset_i", "offset_q", "sideband_phase"},
	},
}

// RegisterDefinition adds or replaces an experiment definition. Used by
// deployments with site-specific experiments.
func (r *Registry) RegisterDefinition(def Definition) {
	r.definitions[def.Experiment] = def
}

// RegisterRunner binds a measurement backend to an experiment type.
func (r *Registry) RegisterRunner(experiment string, runner Runner) {
	r.runners[experiment] = runner
}

// Definition looks up the declared contract for an experiment type.
func (r *Registry) Definition(experiment string) (Definition, bool) {
	def, ok := r.definitions[experiment]
	return def, ok
}

// Runner looks up the backend bound to an experiment type.
func (r *Registry) Runner(experiment string) (Runner, bool) {
	runner, ok := r.runners[experiment]
	return runner, ok
}

// Experiments returns the known experiment types in sorted order.
func (r *Registry) Experiments() []string {
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate performs a parity check between definitions and runners: every
// definition needs a backend, every backend needs a declared contract.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	for name := range r.definitions {
		if _, ok := r.runners[name]; !ok {
			errs = append(errs, fmt.Sprintf("experiment %q has no registered measurement backend", name))
		}
	}
	for name := range r.runners {
		if _, ok := r.definitions[name]; !ok {
			errs = append(errs, fmt.Sprintf("backend registered for unknown experiment %q", name))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("measurement registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Measurement registry validation passed.", "experiments", len(r.definitions))
	return nil
}
