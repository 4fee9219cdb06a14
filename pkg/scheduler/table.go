package scheduler

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"vpn-sentinel/pkg/model"
)

// PrintTable writes the pass/fail table shown by the one-shot check.
func PrintTable(w io.Writer, s model.RunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBE\tSTATUS\tMESSAGE")
	for _, r := range s.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Probe, strings.ToUpper(string(r.Status)), r.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, rep := range s.Repairs {
		state := "converged"
		if !rep.Converged {
			state = "NOT converged"
		}
		if rep.Kind == "persist" {
			state = "persistence failed"
		}
		fmt.Fprintf(w, "repair %s: %s", rep.Probe, state)
		if rep.Error != "" {
			fmt.Fprintf(w, " (%s)", rep.Error)
		}
		fmt.Fprintln(w)
	}
	_, err := fmt.Fprintf(w, "total=%d passed=%d failed=%d warned=%d status=%s duration=%s\n",
		s.Total, s.Passed, s.Failed, s.Warned, strings.ToUpper(string(s.Status)), s.Duration().Round(time.Millisecond))
	return err
}
