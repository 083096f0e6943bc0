package chain

import (
	"fmt"
	"strings"

	"chainwork/core"
)

// progressFileName is the shared progress file inside the chain directory.
const progressFileName = "progress.md"

// instructionText renders the file-I/O directives appended to a task's text,
// derived from its resolved behavior. createProgress selects the
// create-or-update wording: "create" only for the first progress-tracking
// step of the whole chain.
func instructionText(rb core.ResolvedBehavior, progressPath string, createProgress bool) string {
	var b strings.Builder
	if len(rb.ReadPaths) > 0 {
		fmt.Fprintf(&b, "\n\nBefore starting, read these files: %s.", strings.Join(rb.ReadPaths, ", "))
	}
	if rb.OutputPath != "" {
		fmt.Fprintf(&b, "\n\nWrite your final output to the file: %s", rb.OutputPath)
	}
	if rb.ProgressTracking {
		if createProgress {
			fmt.Fprintf(&b, "\n\nCreate the shared progress file at %s and keep it updated as you work.", progressPath)
		} else {
			fmt.Fprintf(&b, "\n\nUpdate the shared progress file at %s as you work.", progressPath)
		}
	}
	return b.String()
}

// AggregateOutputs concatenates parallel task outputs under per-task headers
// in original task order. Failed tasks get a failure marker naming the error
// so downstream steps (and failure summaries) see what went missing.
func AggregateOutputs(tasks []core.SequentialStep, results []*core.TaskResult) string {
	var b strings.Builder
	for i, task := range tasks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Parallel Task %d (%s) ===\n", i+1, task.AgentName)
		res := results[i]
		switch {
		case res == nil:
			b.WriteString("[NO RESULT]")
		case res.Skipped():
			b.WriteString("[SKIPPED] " + res.ErrorMessage)
		case res.Failed():
			b.WriteString("[FAILED] " + res.ErrorMessage)
		default:
			b.WriteString(res.Output)
		}
	}
	return b.String()
}
