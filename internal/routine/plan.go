package routine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/hashicorp/hcl/v2"
	"github.com/qulab/autocal/internal/ctxlog"
	"github.com/qulab/autocal/internal/measure"
	"github.com/qulab/autocal/internal/schema"
	"github.com/qulab/autocal/internal/settings"
	"github.com/zclconf/go-cty/cty"
)

// Plan is the fully expanded, validated execution plan of one routine:
// step nodes duplicated per transition and iteration, in the strict
// sequential order the engine will visit them, with all predicates and
// settings chains attached. A plan is immutable after Build and may be
// shared by concurrent runs on different qubits.
type Plan struct {
	Routine string
	General General
	Nodes   []*Node

	byID map[string]*Node
	deps graph.Graph[string, string]
}

// Build expands a routine declaration into a plan. Configuration problems
// (unknown experiments, dangling references, dependency cycles) are
// detected here so a run never starts against an invalid plan.
func Build(ctx context.Context, bundle *Bundle, routineName string, reg *measure.Registry) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building routine plan.", "routine", routineName)

	rt, ok := bundle.Routine(routineName)
	if !ok {
		return nil, fmt.Errorf("unknown routine %q (declared: %s)",
			routineName, strings.Join(bundle.RoutineNames(), ", "))
	}
	if rt.General == nil {
		return nil, fmt.Errorf("routine %q has no general section", routineName)
	}

	gen, err := parseGeneral(rt.General)
	if err != nil {
		return nil, fmt.Errorf("routine %q: %w", routineName, err)
	}

	globalLayer, err := mergeDefaults("global", bundle.Defaults)
	if err != nil {
		return nil, err
	}
	routineLayer, err := mergeDefaults("routine", defaultsOf(rt))
	if err != nil {
		return nil, err
	}

	steps, err := indexSteps(rt, reg)
	if err != nil {
		return nil, fmt.Errorf("routine %q: %w", routineName, err)
	}

	p := &Plan{
		Routine: routineName,
		General: gen,
		byID:    make(map[string]*Node),
		deps:    graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
	}

	// First pass: expand every transition group sequentially, in declared
	// step order, inserting fallback nodes directly after their parents.
	for _, transition := range gen.Transitions {
		for iter := 1; iter <= gen.Iterations(transition); iter++ {
			if err := p.expandGroup(rt, steps, gen, transition, iter, routineLayer, globalLayer); err != nil {
				return nil, fmt.Errorf("routine %q: %w", routineName, err)
			}
		}
	}
	if len(p.Nodes) == 0 {
		return nil, fmt.Errorf("routine %q expands to no steps", routineName)
	}

	// Second pass: link dependencies and validate references.
	if err := p.linkNodes(); err != nil {
		return nil, fmt.Errorf("routine %q: %w", routineName, err)
	}

	logger.Debug("Routine plan built.", "routine", routineName,
		"nodes", len(p.Nodes), "transitions", len(gen.Transitions))
	return p, nil
}

// Node returns a plan node by ID.
func (p *Plan) Node(id string) (*Node, bool) {
	n, ok := p.byID[id]
	return n, ok
}

// Next returns the next node without a terminal result, or nil when all
// nodes are terminal. Visit order is exactly expansion order; there is no
// reordering or speculative execution.
func (p *Plan) Next(st *RunState) *Node {
	for _, n := range p.Nodes {
		if !st.Terminal(n.ID) {
			return n
		}
	}
	return nil
}

// Complete reports whether every node holds a terminal result.
func (p *Plan) Complete(st *RunState) bool {
	return p.Next(st) == nil
}

// Bindings builds the symbol table visible to the node's settings
// formulas: `hw.` hardware constants, `qubit.` stored parameters at run
// start, and `step.<name>.<output>` for every succeeded step of the same
// transition group, latest iteration winning.
func (p *Plan) Bindings(st *RunState, node *Node) map[string]cty.Value {
	stepVals := make(map[string]cty.Value)
	for _, n := range p.Nodes {
		if n.Transition != node.Transition {
			continue
		}
		res, ok := st.Result(n.ID)
		if !ok || res.Status != StatusSuccess {
			continue
		}
		stepVals[n.Name] = floatObject(res.Outputs)
	}

	return map[string]cty.Value{
		"hw":    floatObject(st.Hardware()),
		"qubit": floatObject(st.QubitParams()),
		"step":  cty.ObjectVal(stepVals),
	}
}

// expandGroup appends the nodes of one (transition, iteration) group.
func (p *Plan) expandGroup(rt *schema.Routine, steps map[string]*stepInfo, gen General,
	transition string, iter int, routineLayer, globalLayer *settings.Layer) error {

	for _, st := range rt.Steps {
		info := steps[st.Name]
		if !info.auto || !info.allowsTransition(transition) {
			continue
		}

		node, err := p.newNode(info, gen, transition, iter, routineLayer, globalLayer)
		if err != nil {
			return err
		}
		p.append(node)

		if st.Fallback == "" {
			continue
		}
		fbInfo := steps[st.Fallback]
		// The fallback keeps its own transitions restriction and enable
		// flag; a parent whose fallback is absent or disabled here fails
		// unrecovered.
		if !fbInfo.allowsTransition(transition) {
			continue
		}
		fb, err := p.newNode(fbInfo, gen, transition, iter, routineLayer, globalLayer)
		if err != nil {
			return err
		}
		fb.FallbackFor = node.ID
		node.FallbackID = fb.ID
		p.append(fb)
	}
	return nil
}

func (p *Plan) newNode(info *stepInfo, gen General, transition string, iter int,
	routineLayer, globalLayer *settings.Layer) (*Node, error) {

	st := info.step
	var body = bodyOf(st.Settings)
	stepLayer, err := settings.LayerFromBody("step:"+st.Name, body)
	if err != nil {
		return nil, err
	}

	node := &Node{
		ID:         nodeID(st.Name, transition, iter),
		Name:       st.Name,
		Experiment: info.experiment,
		Transition: transition,
		Iteration:  iter,
		Enabled:    gen.Enabled(st.Name),
		Required:   st.Required,
		Outputs:    info.outputs,
		Chain:      settings.NewChain(stepLayer, routineLayer, globalLayer),
		step:       st,
	}

	for _, gate := range st.After {
		node.Gates = append(node.Gates, nodeID(gate, transition, iter))
	}
	if st.Branch != nil {
		node.Branch = &MetricGate{
			SourceID: nodeID(st.Branch.Source, transition, iter),
			Metric:   st.Branch.Metric,
			Above:    st.Branch.Above,
			Below:    st.Branch.Below,
		}
	}
	return node, nil
}

func (p *Plan) append(node *Node) {
	p.Nodes = append(p.Nodes, node)
	p.byID[node.ID] = node
}

// linkNodes materializes the dependency graph: the sequential order chain
// plus gate, branch, and fallback edges. PreventCycles turns a forward
// reference (a gate on a later step) into a build error instead of a hang.
func (p *Plan) linkNodes() error {
	for _, n := range p.Nodes {
		_ = p.deps.AddVertex(n.ID, graph.VertexAttribute("label", n.ID))
	}

	for i := 1; i < len(p.Nodes); i++ {
		if err := p.addEdge(p.Nodes[i-1].ID, p.Nodes[i].ID); err != nil {
			return err
		}
	}

	for _, n := range p.Nodes {
		for _, gate := range n.Gates {
			if _, ok := p.byID[gate]; !ok {
				return fmt.Errorf("step %q gates on %q, which is not scheduled for this transition group", n.ID, gate)
			}
			if err := p.addEdge(gate, n.ID); err != nil {
				return err
			}
		}
		if n.Branch != nil {
			if _, ok := p.byID[n.Branch.SourceID]; !ok {
				return fmt.Errorf("step %q branches on %q, which is not scheduled for this transition group", n.ID, n.Branch.SourceID)
			}
			if err := p.addEdge(n.Branch.SourceID, n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plan) addEdge(from, to string) error {
	err := p.deps.AddEdge(from, to)
	switch {
	case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return fmt.Errorf("dependency cycle involving %q and %q: steps may only reference earlier steps", from, to)
	default:
		return fmt.Errorf("failed to link %q -> %q: %w", from, to, err)
	}
}

// --- step indexing ---

type stepInfo struct {
	step       *schema.Step
	experiment string
	outputs    []string
	auto       bool
}

func (i *stepInfo) allowsTransition(t string) bool {
	if len(i.step.Transitions) == 0 {
		return true
	}
	for _, allowed := range i.step.Transitions {
		if allowed == t {
			return true
		}
	}
	return false
}

func indexSteps(rt *schema.Routine, reg *measure.Registry) (map[string]*stepInfo, error) {
	steps := make(map[string]*stepInfo, len(rt.Steps))
	for _, st := range rt.Steps {
		if _, dup := steps[st.Name]; dup {
			return nil, fmt.Errorf("step %q is declared more than once", st.Name)
		}

		experiment := st.Experiment
		if experiment == "" {
			experiment = st.Name
		}
		def, ok := reg.Definition(experiment)
		if !ok {
			return nil, fmt.Errorf("step %q uses unknown experiment %q", st.Name, experiment)
		}

		steps[st.Name] = &stepInfo{
			step:       st,
			experiment: experiment,
			outputs:    def.Outputs,
			auto:       st.Auto == nil || *st.Auto,
		}
	}

	fallbackParents := make(map[string]string)
	for _, st := range rt.Steps {
		for _, gate := range st.After {
			if _, ok := steps[gate]; !ok {
				return nil, fmt.Errorf("step %q gates on undeclared step %q", st.Name, gate)
			}
		}
		if st.Branch != nil {
			if _, ok := steps[st.Branch.Source]; !ok {
				return nil, fmt.Errorf("step %q branches on undeclared step %q", st.Name, st.Branch.Source)
			}
		}
		if st.Fallback != "" {
			target, ok := steps[st.Fallback]
			if !ok {
				return nil, fmt.Errorf("step %q declares undeclared fallback %q", st.Name, st.Fallback)
			}
			if target.auto {
				return nil, fmt.Errorf("fallback step %q must set auto = false so it is only scheduled on failure", st.Fallback)
			}
			if parent, taken := fallbackParents[st.Fallback]; taken {
				return nil, fmt.Errorf("fallback step %q is claimed by both %q and %q", st.Fallback, parent, st.Name)
			}
			fallbackParents[st.Fallback] = st.Name
		}
	}
	return steps, nil
}

// --- helpers ---

func mergeDefaults(name string, blocks []*schema.DefaultsBlock) (*settings.Layer, error) {
	merged := settings.NewLayer(name)
	for _, block := range blocks {
		layer, err := settings.LayerFromBody(name, block.Body)
		if err != nil {
			return nil, err
		}
		merged.Merge(layer)
	}
	return merged, nil
}

func defaultsOf(rt *schema.Routine) []*schema.DefaultsBlock {
	if rt.Defaults == nil {
		return nil
	}
	return []*schema.DefaultsBlock{rt.Defaults}
}

func bodyOf(block *schema.SettingsBlock) hcl.Body {
	if block == nil {
		return nil
	}
	return block.Body
}

func floatObject(values map[string]float64) cty.Value {
	attrs := make(map[string]cty.Value, len(values))
	for name, val := range values {
		attrs[name] = cty.NumberFloatVal(val)
	}
	return cty.ObjectVal(attrs)
}
