package driver

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Write renders one line per file followed by the totals.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, out := range r.Outcomes {
		detail := fmt.Sprintf("%d units, %d instructions", out.Units, out.Instructions)
		if out.UnitID != "" {
			detail += ", unit " + out.UnitID
		}
		if out.Err != nil {
			detail = out.Err.Error()
			if out.Position.StartLine > 0 {
				detail = fmt.Sprintf("line %d: %s", out.Position.StartLine, detail)
			}
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", out.Status, out.Path, detail); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d files: %d compiled, %d not compilable, %d parse errors, %d failed\n",
		len(r.Outcomes), r.Compiled, r.NotCompilable, r.ParseErrors, r.Failed)
	return err
}
