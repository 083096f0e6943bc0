package chain

import (
	"fmt"
	"strings"
)

// TaskFailure identifies one failed task inside a step by its original index.
type TaskFailure struct {
	TaskIndex int
	AgentName string
	Message   string
}

// ChainError reports a halted chain: which step failed, every task failure
// inside it, and where the preserved chain directory lives.
type ChainError struct {
	FailedStepIndex int
	ChainDir        string
	Failures        []TaskFailure
}

func (e *ChainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chain failed at step %d", e.FailedStepIndex)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; task %d (%s): %s", f.TaskIndex, f.AgentName, f.Message)
	}
	if e.ChainDir != "" {
		fmt.Fprintf(&b, " [chain dir preserved at %s]", e.ChainDir)
	}
	return b.String()
}
