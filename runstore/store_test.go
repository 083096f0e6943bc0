package runstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainwork/core"
)

func sampleSteps() []core.Step {
	return []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Group(core.ParallelGroup{Tasks: []core.SequentialStep{
			{AgentName: "worker-a"},
			{AgentName: "worker-b"},
		}}),
		core.Sequential(core.SequentialStep{AgentName: "reviewer"}),
	}
}

func TestNewRecordFlattensChain(t *testing.T) {
	rec := NewRecord("run-1", ModeChain, sampleSteps())

	require.Len(t, rec.Steps, 4)
	assert.Equal(t, RunPending, rec.State)
	assert.Equal(t, ModeChain, rec.Mode)
	agents := []string{"planner", "worker-a", "worker-b", "reviewer"}
	for i, st := range rec.Steps {
		assert.Equal(t, i, st.FlatIndex)
		assert.Equal(t, agents[i], st.AgentName)
		assert.Equal(t, core.StatusPending, st.Status)
		assert.Nil(t, st.StartedAt)
		assert.Nil(t, st.ExitCode)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	rec := NewRecord("run-1", ModeChain, sampleSteps())
	require.NoError(t, s.Create(rec))

	require.NoError(t, s.SetState("run-1", RunRunning))
	now := time.Now().UTC()
	exit := 0
	require.NoError(t, s.UpdateStep("run-1", 1, func(st *FlatStepStatus) {
		st.Status = core.StatusCompleted
		st.StartedAt = &now
		st.FinishedAt = &now
		st.ExitCode = &exit
	}))

	// A fresh store instance over the same directory sees everything: the
	// status survives the writer process.
	s2 := New(dir)
	got, err := s2.Read("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, got.State)
	assert.Equal(t, core.StatusCompleted, got.Steps[1].Status)
	require.NotNil(t, got.Steps[1].ExitCode)
	assert.Equal(t, 0, *got.Steps[1].ExitCode)
	assert.Equal(t, core.StatusPending, got.Steps[0].Status)
	assert.True(t, got.LastUpdate.After(got.StartedAt) || got.LastUpdate.Equal(got.StartedAt))
}

func TestStoreReadByDirectory(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Create(NewRecord("run-7", ModeSingle, sampleSteps()[:1])))

	got, err := s.Read(filepath.Join(dir, "run-7"))
	require.NoError(t, err)
	assert.Equal(t, "run-7", got.RunID)
	assert.Equal(t, ModeSingle, got.Mode)
}

func TestStoreReadMissing(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Read("run-none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpdateStepIgnoresOutOfRange(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Create(NewRecord("run-1", ModeSingle, sampleSteps()[:1])))

	require.NoError(t, s.UpdateStep("run-1", 99, func(st *FlatStepStatus) {
		st.Status = core.StatusFailed
	}))
	got, err := s.Read("run-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Steps[0].Status)
}

func TestStoreEvents(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Create(NewRecord("run-1", ModeChain, sampleSteps())))

	require.NoError(t, s.AppendEvent("run-1", NewEvent(EventRunStarted)))
	require.NoError(t, s.AppendEvent("run-1", NewEvent(EventTaskStarted).WithStep(0, "planner")))
	require.NoError(t, s.AppendEvent("run-1", NewEvent(EventTaskFinished).WithStep(0, "planner").WithExitCode(0)))
	require.NoError(t, s.AppendEvent("run-1", NewEvent(EventParallelStarted).WithAgents([]string{"worker-a", "worker-b"})))

	events, err := s.Events("run-1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, EventRunStarted, events[0].Type)
	require.NotNil(t, events[1].FlatIndex)
	assert.Equal(t, 0, *events[1].FlatIndex)
	assert.Equal(t, "planner", events[1].AgentName)
	require.NotNil(t, events[2].ExitCode)
	assert.Equal(t, 0, *events[2].ExitCode)
	assert.Equal(t, []string{"worker-a", "worker-b"}, events[3].Agents)
	assert.Equal(t, 2, events[3].Count)
}

func TestStoreEventsToleratesTornLine(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Create(NewRecord("run-1", ModeSingle, sampleSteps()[:1])))
	require.NoError(t, s.AppendEvent("run-1", NewEvent(EventRunStarted)))

	// Simulate a torn trailing write from a crashed process.
	f, err := os.OpenFile(filepath.Join(dir, "run-1", "events.jsonl"), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"task.sta`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.Events("run-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventRunStarted, events[0].Type)
}

func TestStoreEventsMissingFile(t *testing.T) {
	s := New(t.TempDir())
	events, err := s.Events("run-none")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	older := NewRecord("run-old", ModeSingle, sampleSteps()[:1])
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Create(older))
	require.NoError(t, s.Create(NewRecord("run-new", ModeChain, sampleSteps())))

	// Junk in the store root is skipped, not fatal.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-run"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644))

	recs, err := s.List()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "run-new", recs[0].RunID)
	assert.Equal(t, "run-old", recs[1].RunID)
}

func TestStoreListEmptyRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "never-created"))
	recs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStoreLogPathsAreDistinctPerLeaf(t *testing.T) {
	s := New(t.TempDir())
	assert.NotEqual(t, s.OutputLogPath("r", 0), s.OutputLogPath("r", 1))
	assert.NotEqual(t, s.OutputLogPath("r", 0), s.StderrLogPath("r", 0))
	assert.Equal(t, filepath.Join(s.RunDir("r"), "output-3.log"), s.OutputLogPath("r", 3))
}
