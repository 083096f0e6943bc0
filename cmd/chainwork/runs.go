package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chainwork/core"
)

func newRunsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List background runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(flags, false)
			if err != nil {
				return err
			}
			recs, err := engine.ListRuns()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATE\tMODE\tTASKS\tDONE\tSTARTED")
			for _, rec := range recs {
				done := 0
				for _, st := range rec.Steps {
					if st.Status == core.StatusCompleted || st.Status == core.StatusFailed {
						done++
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					rec.RunID, stateColor(rec.State).Sprint(rec.State), rec.Mode,
					len(rec.Steps), done, rec.StartedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
