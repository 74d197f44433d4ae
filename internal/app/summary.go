package app

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/qulab/autocal/internal/orchestrator"
)

// printSummary renders the audited per-step report for every qubit run to
// the application's output writer.
func (a *App) printSummary(outcomes []*orchestrator.Outcome) {
	w := tabwriter.NewWriter(a.outW, 2, 4, 2, ' ', 0)
	defer w.Flush()

	for _, out := range outcomes {
		fmt.Fprintf(w, "\nqubit %s\trun %s\t%s\t(%s)\n",
			out.QubitID, out.RunID, out.Status, out.Finished.Sub(out.Started).Round(1e6))
		if out.AbortReason != "" {
			fmt.Fprintf(w, "  abort reason:\t%s\n", out.AbortReason)
		}
		if out.Err != nil {
			fmt.Fprintf(w, "  error:\t%v\n", out.Err)
		}

		for _, step := range out.Steps {
			detail := step.Reason
			if step.Status.String() == "success" && detail == "" {
				detail = fmt.Sprintf("%d attempt(s)", step.Attempts)
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", step.NodeID, step.Status, detail)
		}

		if len(out.Committed) > 0 {
			names := make([]string, 0, len(out.Committed))
			for name := range out.Committed {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintf(w, "  committed:\n")
			for _, name := range names {
				fmt.Fprintf(w, "    %s\t= %g\n", name, out.Committed[name])
			}
		}
	}
}
