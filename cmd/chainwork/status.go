package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chainwork/core"
	"chainwork/runstore"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the persisted status of a background run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(flags, false)
			if err != nil {
				return err
			}
			rec, err := engine.ReadAsyncStatus(args[0])
			if err != nil {
				return err
			}
			printRecord(rec)

			if showEvents {
				events, err := engine.Store().Events(rec.RunID)
				if err != nil {
					return err
				}
				fmt.Println()
				for _, ev := range events {
					printEvent(ev)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "also print the run's event log")
	return cmd
}

func printRecord(rec *runstore.Record) {
	fmt.Printf("%s  %s  %s\n", rec.RunID, stateColor(rec.State).Sprint(rec.State), rec.Mode)
	fmt.Printf("started %s, last update %s\n\n",
		rec.StartedAt.Format("2006-01-02 15:04:05"), rec.LastUpdate.Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tAGENT\tSTATUS\tEXIT")
	for _, st := range rec.Steps {
		exit := "-"
		if st.ExitCode != nil {
			exit = fmt.Sprintf("%d", *st.ExitCode)
			if *st.ExitCode == core.SkippedExitCode {
				exit = "skipped"
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.FlatIndex, st.AgentName, statusColor(st.Status).Sprint(st.Status), exit)
	}
	w.Flush()
}

func printEvent(ev runstore.Event) {
	line := fmt.Sprintf("%s  %s", ev.Time.Format("15:04:05"), ev.Type)
	if ev.FlatIndex != nil {
		line += fmt.Sprintf("  step=%d agent=%s", *ev.FlatIndex, ev.AgentName)
	}
	if ev.ExitCode != nil {
		line += fmt.Sprintf(" exit=%d", *ev.ExitCode)
	}
	if len(ev.Agents) > 0 {
		line += fmt.Sprintf("  agents=%v", ev.Agents)
	}
	if ev.Message != "" {
		line += "  " + ev.Message
	}
	fmt.Println(line)
}

func stateColor(s runstore.RunState) *color.Color {
	switch s {
	case runstore.RunCompleted:
		return color.New(color.FgGreen)
	case runstore.RunFailed, runstore.RunCancelled:
		return color.New(color.FgRed)
	case runstore.RunRunning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Faint)
	}
}

func statusColor(s core.TaskStatus) *color.Color {
	switch s {
	case core.StatusCompleted:
		return color.New(color.FgGreen)
	case core.StatusFailed:
		return color.New(color.FgRed)
	case core.StatusRunning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Faint)
	}
}
