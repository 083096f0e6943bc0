package runstore

import (
	"time"

	"chainwork/core"
)

// RunState is the lifecycle of a persisted run.
type RunState string

const (
	// RunPending marks a run accepted but not yet started.
	RunPending RunState = "pending"
	// RunRunning marks a run with at least one task in flight.
	RunRunning RunState = "running"
	// RunCompleted marks a run whose every leaf step completed.
	RunCompleted RunState = "completed"
	// RunFailed marks a run halted by a step failure.
	RunFailed RunState = "failed"
	// RunCancelled marks a run cancelled by its caller.
	RunCancelled RunState = "cancelled"
)

// RunMode distinguishes single-task runs from chains.
type RunMode string

const (
	// ModeSingle is a one-task run.
	ModeSingle RunMode = "single"
	// ModeChain is a multi-step chain run.
	ModeChain RunMode = "chain"
)

// FlatStepStatus tracks one leaf execution of the flattened chain.
type FlatStepStatus struct {
	FlatIndex  int             `json:"flat_index"`
	AgentName  string          `json:"agent"`
	Status     core.TaskStatus `json:"status"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	ExitCode   *int            `json:"exit_code,omitempty"`
}

// Record is the persisted run state machine. Chains containing parallel
// groups are flattened: each group task becomes its own Steps entry in task
// order, interleaved with sequential steps in chain order, so status
// inspection never needs to understand chain topology.
type Record struct {
	RunID      string           `json:"run_id"`
	State      RunState         `json:"state"`
	Mode       RunMode          `json:"mode"`
	Steps      []FlatStepStatus `json:"steps"`
	StartedAt  time.Time        `json:"started_at"`
	LastUpdate time.Time        `json:"last_update"`
}

// NewRecord flattens the chain and builds the initial record with every leaf
// pending. len(Steps) equals the chain's leaf count; an empty parallel group
// contributes zero entries.
func NewRecord(runID string, mode RunMode, steps []core.Step) *Record {
	flat := core.Flatten(steps)
	now := time.Now().UTC()
	rec := &Record{
		RunID:      runID,
		State:      RunPending,
		Mode:       mode,
		Steps:      make([]FlatStepStatus, len(flat)),
		StartedAt:  now,
		LastUpdate: now,
	}
	for i, fs := range flat {
		rec.Steps[i] = FlatStepStatus{
			FlatIndex: fs.FlatIndex,
			AgentName: fs.AgentName,
			Status:    core.StatusPending,
		}
	}
	return rec
}
