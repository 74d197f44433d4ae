package routine

import (
	"fmt"
	"io"

	"github.com/dominikbraun/graph/draw"
)

// ExportDOT writes the plan's dependency graph in Graphviz DOT format.
// Useful for reviewing what a routine actually expands to before pointing
// it at hardware.
func (p *Plan) ExportDOT(w io.Writer) error {
	if err := draw.DOT(p.deps, w, draw.GraphAttribute("label", p.Routine)); err != nil {
		return fmt.Errorf("failed to render plan graph: %w", err)
	}
	return nil
}
