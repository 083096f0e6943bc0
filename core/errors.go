package core

import "fmt"

var (
	// ErrEmptyChain is returned when a chain contains no steps.
	ErrEmptyChain = fmt.Errorf("chain contains no steps")

	// ErrEmptyTask is returned when the first step's task template resolves
	// to empty text, leaving nothing to seed the {task} variable with.
	ErrEmptyTask = fmt.Errorf("first step resolves to an empty task")
)

// UnknownAgentError reports a step referencing an agent that is not present
// in the registry. It is raised before the step's process is spawned.
type UnknownAgentError struct {
	AgentName string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent: %s", e.AgentName)
}
