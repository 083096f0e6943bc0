package core

// SequentialStep is one unit of delegated work executed by a single worker
// process. TaskTemplate may reference the chain variables {task}, {previous}
// and {chain_dir}; an empty template falls back to {task} for the first chain
// step and {previous} for every later one.
type SequentialStep struct {
	AgentName    string            `yaml:"agent" json:"agent"`
	TaskTemplate string            `yaml:"task,omitempty" json:"task,omitempty"`
	WorkingDir   string            `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	Overrides    BehaviorOverrides `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// ParallelGroup schedules its tasks concurrently, bounded by ConcurrencyLimit
// (0 means the orchestrator default). With FailFast set, tasks that have not
// started when a sibling fails are skipped instead of launched.
type ParallelGroup struct {
	Tasks            []SequentialStep `yaml:"tasks" json:"tasks"`
	ConcurrencyLimit int              `yaml:"limit,omitempty" json:"limit,omitempty"`
	FailFast         bool             `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
}

// Step is the tagged union driving the orchestrator's step loop: exactly one
// of Task or Parallel is set. The presence of Parallel is the discriminator;
// use the narrowing helpers instead of inspecting fields directly.
type Step struct {
	Task     *SequentialStep `yaml:"task,omitempty" json:"task,omitempty"`
	Parallel *ParallelGroup  `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

// Sequential wraps a SequentialStep into a Step.
func Sequential(s SequentialStep) Step { return Step{Task: &s} }

// Group wraps a ParallelGroup into a Step.
func Group(g ParallelGroup) Step { return Step{Parallel: &g} }

// IsParallel reports whether the step is a parallel group.
func (s Step) IsParallel() bool { return s.Parallel != nil }

// AsSequential narrows the step to its sequential variant.
func (s Step) AsSequential() (*SequentialStep, bool) { return s.Task, s.Task != nil }

// AsParallel narrows the step to its parallel variant.
func (s Step) AsParallel() (*ParallelGroup, bool) { return s.Parallel, s.Parallel != nil }

// FlatStep is one leaf execution after parallel groups have been expanded.
// StepIndex addresses the chain step, TaskIndex the position inside a parallel
// group (0 for sequential steps), FlatIndex the position in the flattened run.
type FlatStep struct {
	FlatIndex int
	StepIndex int
	TaskIndex int
	AgentName string
}

// Flatten expands parallel groups into one entry per task, in task order,
// interleaved with sequential steps in chain order. An empty parallel group
// contributes no entries.
func Flatten(steps []Step) []FlatStep {
	var flat []FlatStep
	for si, step := range steps {
		if group, ok := step.AsParallel(); ok {
			for ti, task := range group.Tasks {
				flat = append(flat, FlatStep{FlatIndex: len(flat), StepIndex: si, TaskIndex: ti, AgentName: task.AgentName})
			}
			continue
		}
		if task, ok := step.AsSequential(); ok {
			flat = append(flat, FlatStep{FlatIndex: len(flat), StepIndex: si, AgentName: task.AgentName})
		}
	}
	return flat
}

// LeafCount returns the total number of leaf executions in the chain.
func LeafCount(steps []Step) int {
	n := 0
	for _, step := range steps {
		if group, ok := step.AsParallel(); ok {
			n += len(group.Tasks)
		} else if step.Task != nil {
			n++
		}
	}
	return n
}
