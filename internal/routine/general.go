package routine

import (
	"fmt"

	"github.com/qulab/autocal/internal/formula"
	"github.com/qulab/autocal/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// General is the parsed general section of a routine: the transition list,
// commit switches, per-transition repeat counts, and per-step enable
// flags. It is fixed at plan-build time.
type General struct {
	Transitions    []string
	Update         bool
	CommitEachStep bool
	Recalibrate    bool
	Repeats        map[string]int
	Flags          map[string]bool
}

// Enabled reports whether a step is switched on. A step without an
// explicit flag runs: declaring a step opts it in, flags exist to turn
// steps off per deployment.
func (g General) Enabled(stepName string) bool {
	if v, ok := g.Flags[stepName]; ok {
		return v
	}
	return true
}

// Iterations returns the repeat count for a transition, defaulting to one.
func (g General) Iterations(transition string) int {
	if n := g.Repeats[transition]; n > 0 {
		return n
	}
	return 1
}

func parseGeneral(sg *schema.General) (General, error) {
	gen := General{
		Transitions:    sg.Transitions,
		Update:         sg.Update,
		CommitEachStep: sg.CommitEachStep,
		Recalibrate:    sg.Recalibrate,
		Repeats:        make(map[string]int),
		Flags:          make(map[string]bool),
	}

	if len(gen.Transitions) == 0 {
		return General{}, fmt.Errorf("general section declares no transitions")
	}
	seen := make(map[string]struct{})
	for _, t := range gen.Transitions {
		if t == "" {
			return General{}, fmt.Errorf("general section contains an empty transition name")
		}
		if _, dup := seen[t]; dup {
			return General{}, fmt.Errorf("transition %q is listed more than once", t)
		}
		seen[t] = struct{}{}
	}

	if err := gen.parseFlags(sg); err != nil {
		return General{}, err
	}
	if err := gen.parseRepeats(sg); err != nil {
		return General{}, err
	}
	return gen, nil
}

// parseFlags decodes the remaining general attributes as per-step enable
// flags. Flags are switches, not computed values; formulas here indicate a
// misplaced setting and are rejected outright.
func (g *General) parseFlags(sg *schema.General) error {
	if sg.Flags == nil {
		return nil
	}
	attrs, diags := sg.Flags.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("invalid general section: %s", diags.Error())
	}

	for name, attr := range attrs {
		if formula.IsFormula(attr.Expr) {
			return fmt.Errorf("enable flag %q must be a literal boolean, not a formula", name)
		}
		val, err := formula.Evaluate(attr.Expr, nil)
		if err != nil {
			return fmt.Errorf("enable flag %q: %w", name, err)
		}
		b, convErr := convert.Convert(val, cty.Bool)
		if convErr != nil {
			return fmt.Errorf("enable flag %q must be a boolean: %s", name, convErr)
		}
		g.Flags[name] = b.True()
	}
	return nil
}

func (g *General) parseRepeats(sg *schema.General) error {
	if sg.Repeats == nil {
		return nil
	}
	val, diags := sg.Repeats.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("invalid repeats: %s", diags.Error())
	}
	if val.IsNull() {
		return nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return fmt.Errorf("repeats must map transition names to counts")
	}

	for name, v := range val.AsValueMap() {
		num, convErr := convert.Convert(v, cty.Number)
		if convErr != nil {
			return fmt.Errorf("repeat count for transition %q must be a number: %s", name, convErr)
		}
		f, _ := num.AsBigFloat().Float64()
		count := int(f)
		if count < 1 {
			return fmt.Errorf("repeat count for transition %q must be at least 1, got %d", name, count)
		}
		g.Repeats[name] = count
	}
	return nil
}
