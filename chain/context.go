package chain

// RunContext is the mutable state threaded through one chain run. It is owned
// exclusively by the orchestrator's step loop; passing it explicitly keeps
// the data flow visible and testable in isolation.
type RunContext struct {
	RunID    string
	ChainDir string

	// OriginalTask seeds {task} for the whole chain.
	OriginalTask string

	// PreviousOutput is the sole channel through which {previous} resolves
	// for the next step. It is overwritten after each sequential step and
	// replaced by the aggregated group text after a parallel step.
	PreviousOutput string

	// ProgressFileCreated flips when the shared progress file has been
	// created, either by the first progress-tracking step's instruction or
	// by the orchestrator ahead of a parallel group.
	ProgressFileCreated bool

	// GlobalTaskIndex counts leaf executions across the whole chain and
	// matches the flattened index used by the run store.
	GlobalTaskIndex int
}
