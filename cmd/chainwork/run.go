package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chainwork"
	"chainwork/core"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		background bool
		workingDir string
		output     string
		progress   bool
	)

	cmd := &cobra.Command{
		Use:   "run <agent> <task>",
		Short: "Run a single task on one agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(flags, true)
			if err != nil {
				return err
			}
			agent, task := args[0], args[1]

			if background {
				runID, err := engine.RunTaskAsync(cmd.Context(), agent, task)
				if err != nil {
					return err
				}
				fmt.Println(runID)
				return nil
			}

			res, err := engine.RunTask(cmd.Context(), agent, task, func(o *chainwork.TaskOptions) {
				o.WorkingDir = workingDir
				o.Overrides = runOverrides(output, cmd.Flags().Changed("progress"), progress)
				o.OnProgress = newProgressPrinter()
			})
			if err != nil {
				return err
			}
			printResult(res)
			if res.Failed() {
				os.Exit(res.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&background, "background", false, "accept the task and return a run id immediately")
	cmd.Flags().StringVar(&workingDir, "dir", "", "working directory for the worker process")
	cmd.Flags().StringVar(&output, "output", "", "write the agent's output to this file (overrides the agent default)")
	cmd.Flags().BoolVar(&progress, "progress", false, "override the agent's progress-file default")
	return cmd
}

// runOverrides builds per-invocation behavior overrides from the flags.
// An unset flag leaves the corresponding agent default in force.
func runOverrides(output string, progressSet, progress bool) core.BehaviorOverrides {
	var ov core.BehaviorOverrides
	if output != "" {
		ov.Output = &core.OutputSetting{Path: output}
	}
	if progressSet {
		ov.Progress = &progress
	}
	return ov
}

// newProgressPrinter renders throttled progress snapshots as single status
// lines on stderr. Snapshots for different parallel tasks interleave, so each
// line is prefixed with the task index and agent.
func newProgressPrinter() func(*core.ProgressRecord) {
	var mu sync.Mutex
	dim := color.New(color.Faint)
	return func(p *core.ProgressRecord) {
		mu.Lock()
		defer mu.Unlock()
		tool := p.CurrentTool
		if tool == "" && len(p.RecentTools) > 0 {
			tool = p.RecentTools[0]
		}
		dim.Fprintf(os.Stderr, "[%d %s] %s tools=%d tokens=%d %s\n",
			p.Index, p.AgentName, p.Status, p.ToolCount, p.TokenCount, tool)
	}
}

func printResult(res *core.TaskResult) {
	if res.Failed() {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "FAILED (exit %d)\n", res.ExitCode)
		if res.ErrorMessage != "" {
			fmt.Fprintln(os.Stderr, res.ErrorMessage)
		}
	}
	if out := strings.TrimRight(res.Output, "\n"); out != "" {
		fmt.Println(out)
	}
	if res.Truncation != nil && res.Truncation.Truncated {
		color.New(color.Faint).Fprintf(os.Stderr, "(output truncated from %d bytes / %d lines)\n",
			res.Truncation.OriginalBytes, res.Truncation.OriginalLines)
	}
}
