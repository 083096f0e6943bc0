package chainwork

import (
	"time"

	"chainwork/core"
	"chainwork/runstore"
)

// recorder mirrors orchestrator transitions into the run store. Store errors
// are swallowed: a failing status write must not take down the run it
// describes, and the next transition writes the full record again anyway.
type recorder struct {
	store *runstore.Store
	runID string
}

func newRecorder(store *runstore.Store, runID string) *recorder {
	return &recorder{store: store, runID: runID}
}

func (r *recorder) RunStarted() {
	_ = r.store.SetState(r.runID, runstore.RunRunning)
	_ = r.store.AppendEvent(r.runID, runstore.NewEvent(runstore.EventRunStarted))
}

func (r *recorder) ParallelStarted(agents []string) {
	_ = r.store.AppendEvent(r.runID, runstore.NewEvent(runstore.EventParallelStarted).WithAgents(agents))
}

func (r *recorder) TaskStarted(flatIndex int, agent string) {
	now := time.Now().UTC()
	_ = r.store.UpdateStep(r.runID, flatIndex, func(st *runstore.FlatStepStatus) {
		st.Status = core.StatusRunning
		st.StartedAt = &now
	})
	_ = r.store.AppendEvent(r.runID, runstore.NewEvent(runstore.EventTaskStarted).WithStep(flatIndex, agent))
}

func (r *recorder) TaskFinished(flatIndex int, agent string, res *core.TaskResult) {
	now := time.Now().UTC()
	exit := res.ExitCode
	_ = r.store.UpdateStep(r.runID, flatIndex, func(st *runstore.FlatStepStatus) {
		st.FinishedAt = &now
		st.ExitCode = &exit
		switch {
		case res.Skipped():
			// Never ran; keep pending so inspection shows it was not executed.
			st.Status = core.StatusPending
		case res.Failed():
			st.Status = core.StatusFailed
		default:
			st.Status = core.StatusCompleted
		}
	})
	ev := runstore.NewEvent(runstore.EventTaskFinished).WithStep(flatIndex, agent).WithExitCode(exit)
	if res.ErrorMessage != "" {
		ev = ev.WithMessage(res.ErrorMessage)
	}
	_ = r.store.AppendEvent(r.runID, ev)
}

func (r *recorder) RunFinished(failed bool, summary string) {
	if failed {
		_ = r.store.SetState(r.runID, runstore.RunFailed)
		_ = r.store.AppendEvent(r.runID, runstore.NewEvent(runstore.EventRunFailed).WithMessage(summary))
		return
	}
	_ = r.store.SetState(r.runID, runstore.RunCompleted)
	_ = r.store.AppendEvent(r.runID, runstore.NewEvent(runstore.EventRunCompleted))
}

func (r *recorder) StepLogPaths(flatIndex int) (string, string) {
	return r.store.OutputLogPath(r.runID, flatIndex), r.store.StderrLogPath(r.runID, flatIndex)
}
