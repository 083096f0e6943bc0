package chain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainwork/config"
	"chainwork/core"
	"chainwork/logging"
	"chainwork/runner"
)

// fakeRunner records every WorkerSpec it receives and answers from a handler.
type fakeRunner struct {
	mu      sync.Mutex
	specs   []runner.WorkerSpec
	handler func(spec runner.WorkerSpec) (*core.TaskResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, spec runner.WorkerSpec) (*core.TaskResult, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(spec)
	}
	return &core.TaskResult{AgentName: spec.AgentName, Task: spec.Task, Output: "out-" + spec.AgentName}, nil
}

func (f *fakeRunner) recorded() []runner.WorkerSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.WorkerSpec(nil), f.specs...)
}

func chainRegistry() core.Registry {
	return config.NewRegistry(
		core.AgentSpec{Name: "planner", Command: "/bin/worker"},
		core.AgentSpec{Name: "builder", Command: "/bin/worker", Model: "model-b"},
		core.AgentSpec{Name: "reviewer", Command: "/bin/worker"},
		core.AgentSpec{Name: "scribe", Command: "/bin/worker", DefaultOutput: &core.OutputSetting{Path: "notes.md"}},
		core.AgentSpec{Name: "tracker", Command: "/bin/worker", DefaultProgress: true},
	)
}

func TestRunSequentialChainThreadsOutput(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Sequential(core.SequentialStep{AgentName: "builder", TaskTemplate: "Build from plan: {previous}"}),
		core.Sequential(core.SequentialStep{AgentName: "reviewer"}),
	}
	res, err := o.Run(context.Background(), steps, "ship the feature", func(ro *RunOptions) {
		ro.ChainDir = t.TempDir()
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	specs := fr.recorded()
	require.Len(t, specs, 3)
	// First step gets the original task, later defaults get {previous}.
	assert.Equal(t, "ship the feature", specs[0].Task)
	assert.Equal(t, "Build from plan: out-planner", specs[1].Task)
	assert.Equal(t, "out-builder", specs[2].Task)
	assert.Equal(t, "out-reviewer", res.FinalOutput)

	// Flat indices follow chain order.
	assert.Equal(t, 0, specs[0].Index)
	assert.Equal(t, 2, specs[2].Index)

	// Model flows into the worker argv.
	assert.Equal(t, []string{"--model", "model-b"}, specs[1].Args)
}

func TestRunSubstitutesChainDirVariable(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)
	dir := t.TempDir()

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner", TaskTemplate: "Put scratch files under {chain_dir}, task: {task}"}),
	}
	_, err := o.Run(context.Background(), steps, "organize", func(ro *RunOptions) { ro.ChainDir = dir })
	require.NoError(t, err)

	assert.Equal(t, "Put scratch files under "+dir+", task: organize", fr.recorded()[0].Task)
}

func TestRunParallelStepAggregatesIntoNext(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)

	steps := []core.Step{
		core.Group(core.ParallelGroup{Tasks: []core.SequentialStep{
			{AgentName: "planner", TaskTemplate: "part one of {task}"},
			{AgentName: "builder", TaskTemplate: "part two of {task}"},
		}}),
		core.Sequential(core.SequentialStep{AgentName: "reviewer"}),
	}
	res, err := o.Run(context.Background(), steps, "the work", func(ro *RunOptions) { ro.ChainDir = t.TempDir() })
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	specs := fr.recorded()
	require.Len(t, specs, 3)
	reviewerTask := specs[2].Task
	assert.Contains(t, reviewerTask, "=== Parallel Task 1 (planner) ===\nout-planner")
	assert.Contains(t, reviewerTask, "=== Parallel Task 2 (builder) ===\nout-builder")

	// Group tasks take flat indices 0 and 1, the reviewer 2.
	idx := map[string]int{}
	for _, s := range specs {
		idx[s.AgentName] = s.Index
	}
	assert.Equal(t, map[string]int{"planner": 0, "builder": 1, "reviewer": 2}, idx)
}

func TestRunHaltsOnSequentialFailure(t *testing.T) {
	fr := &fakeRunner{handler: func(spec runner.WorkerSpec) (*core.TaskResult, error) {
		if spec.AgentName == "builder" {
			return &core.TaskResult{AgentName: spec.AgentName, ExitCode: 2, ErrorMessage: "build exploded"}, nil
		}
		return &core.TaskResult{AgentName: spec.AgentName, Output: "ok"}, nil
	}}
	o := New(chainRegistry(), fr)
	dir := t.TempDir()

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Sequential(core.SequentialStep{AgentName: "builder"}),
		core.Sequential(core.SequentialStep{AgentName: "reviewer"}),
	}
	res, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = dir })

	var cerr *ChainError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.FailedStepIndex)
	assert.Equal(t, dir, cerr.ChainDir)
	require.Len(t, cerr.Failures, 1)
	assert.Equal(t, "build exploded", cerr.Failures[0].Message)

	// Partial results survive; the reviewer never ran.
	require.NotNil(t, res)
	assert.Len(t, res.Results, 2)
	assert.Len(t, fr.recorded(), 2)

	// Chain dir is preserved for debugging.
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}

func TestRunCollectsAllParallelFailures(t *testing.T) {
	fr := &fakeRunner{handler: func(spec runner.WorkerSpec) (*core.TaskResult, error) {
		if spec.AgentName == "reviewer" {
			return &core.TaskResult{AgentName: spec.AgentName, Output: "fine"}, nil
		}
		return &core.TaskResult{AgentName: spec.AgentName, ExitCode: 1, ErrorMessage: spec.AgentName + " failed"}, nil
	}}
	o := New(chainRegistry(), fr)

	steps := []core.Step{
		core.Group(core.ParallelGroup{Tasks: []core.SequentialStep{
			{AgentName: "planner"},
			{AgentName: "reviewer"},
			{AgentName: "builder"},
		}}),
	}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = t.TempDir() })

	var cerr *ChainError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Failures, 2)
	assert.Equal(t, 0, cerr.Failures[0].TaskIndex)
	assert.Equal(t, "planner", cerr.Failures[0].AgentName)
	assert.Equal(t, 2, cerr.Failures[1].TaskIndex)
	assert.Equal(t, "builder", cerr.Failures[1].AgentName)
}

func TestRunValidatesLazily(t *testing.T) {
	// The unknown agent sits at step 1; step 0 runs before validation fails.
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Sequential(core.SequentialStep{AgentName: "ghost"}),
	}
	res, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = t.TempDir() })

	var uaErr *core.UnknownAgentError
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, "ghost", uaErr.AgentName)
	assert.Len(t, fr.recorded(), 1, "no process spawns for the unknown agent")
	assert.Len(t, res.Results, 1)
}

func TestRunRejectsEmptyChainAndEmptyTask(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)

	_, err := o.Run(context.Background(), nil, "task")
	assert.ErrorIs(t, err, core.ErrEmptyChain)

	steps := []core.Step{core.Sequential(core.SequentialStep{AgentName: "planner"})}
	_, err = o.Run(context.Background(), steps, "   ", func(ro *RunOptions) { ro.ChainDir = t.TempDir() })
	assert.ErrorIs(t, err, core.ErrEmptyTask)
	assert.Empty(t, fr.recorded())
}

func TestRunNamespacesSequentialOutputPath(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)
	dir := t.TempDir()

	steps := []core.Step{core.Sequential(core.SequentialStep{AgentName: "scribe"})}
	_, err := o.Run(context.Background(), steps, "write notes", func(ro *RunOptions) { ro.ChainDir = dir })
	require.NoError(t, err)

	task := fr.recorded()[0].Task
	assert.Contains(t, task, "Write your final output to the file: "+filepath.Join(dir, "notes.md"))
}

func TestRunNamespacesParallelOutputsPerTask(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)
	dir := t.TempDir()

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Group(core.ParallelGroup{Tasks: []core.SequentialStep{
			{AgentName: "scribe"},
			{AgentName: "scribe"},
		}}),
	}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = dir })
	require.NoError(t, err)

	specs := fr.recorded()
	require.Len(t, specs, 3)

	// Identical agents in one group write to distinct per-task directories.
	want0 := filepath.Join(dir, "parallel-1", "0-scribe", "notes.md")
	want1 := filepath.Join(dir, "parallel-1", "1-scribe", "notes.md")
	tasks := []string{specs[1].Task, specs[2].Task}
	assert.Condition(t, func() bool {
		return (strings.Contains(tasks[0], want0) && strings.Contains(tasks[1], want1)) ||
			(strings.Contains(tasks[1], want0) && strings.Contains(tasks[0], want1))
	}, "each group task must get its own namespaced output path")

	// Subdirectories exist before the workers start.
	_, err = os.Stat(filepath.Join(dir, "parallel-1", "0-scribe"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "parallel-1", "1-scribe"))
	assert.NoError(t, err)
}

func TestRunAbsoluteOutputPathPassesThrough(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)

	abs := filepath.Join(t.TempDir(), "fixed.md")
	steps := []core.Step{core.Sequential(core.SequentialStep{
		AgentName: "planner",
		Overrides: core.BehaviorOverrides{Output: &core.OutputSetting{Path: abs}},
	})}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = t.TempDir() })
	require.NoError(t, err)

	assert.Contains(t, fr.recorded()[0].Task, "Write your final output to the file: "+abs)
}

func TestRunCreatesProgressFileBeforeParallelLaunch(t *testing.T) {
	dir := t.TempDir()
	progressPath := filepath.Join(dir, "progress.md")

	// The handler observes the progress file from inside the running task.
	fr := &fakeRunner{handler: func(spec runner.WorkerSpec) (*core.TaskResult, error) {
		if _, err := os.Stat(progressPath); err != nil {
			return nil, fmt.Errorf("progress file missing at task start: %w", err)
		}
		return &core.TaskResult{AgentName: spec.AgentName, Output: "ok"}, nil
	}}
	o := New(chainRegistry(), fr)

	steps := []core.Step{
		core.Group(core.ParallelGroup{Tasks: []core.SequentialStep{
			{AgentName: "tracker"},
			{AgentName: "tracker"},
		}}),
	}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = dir })
	require.NoError(t, err)

	// Group members always get the update wording; only a sequential
	// progress-tracking step can own creation.
	for _, spec := range fr.recorded() {
		assert.Contains(t, spec.Task, "Update the shared progress file at "+progressPath)
		assert.NotContains(t, spec.Task, "Create the shared progress file")
	}
}

func TestRunSequentialProgressCreateThenUpdate(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)
	dir := t.TempDir()

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "tracker"}),
		core.Sequential(core.SequentialStep{AgentName: "tracker"}),
	}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = dir })
	require.NoError(t, err)

	specs := fr.recorded()
	assert.Contains(t, specs[0].Task, "Create the shared progress file")
	assert.Contains(t, specs[1].Task, "Update the shared progress file")
}

func TestRunEmptyParallelGroupIsNoOp(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Group(core.ParallelGroup{}),
		core.Sequential(core.SequentialStep{AgentName: "reviewer"}),
	}
	res, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) { ro.ChainDir = t.TempDir() })
	require.NoError(t, err)

	assert.Len(t, res.Results, 2)
	// The empty group leaves {previous} untouched for the reviewer.
	assert.Equal(t, "out-planner", fr.recorded()[1].Task)
}

// observerLog records transition callbacks in invocation order.
type observerLog struct {
	mu     sync.Mutex
	events []string
}

func (l *observerLog) add(s string) {
	l.mu.Lock()
	l.events = append(l.events, s)
	l.mu.Unlock()
}

func (l *observerLog) RunStarted() { l.add("run-started") }

func (l *observerLog) ParallelStarted(agents []string) {
	l.add(fmt.Sprintf("parallel:%d", len(agents)))
}

func (l *observerLog) TaskStarted(i int, agent string) {
	l.add(fmt.Sprintf("start:%d:%s", i, agent))
}
func (l *observerLog) TaskFinished(i int, agent string, res *core.TaskResult) {
	l.add(fmt.Sprintf("finish:%d:%s:%d", i, agent, res.ExitCode))
}
func (l *observerLog) RunFinished(failed bool, summary string) {
	l.add(fmt.Sprintf("run-finished:%v", failed))
}
func (l *observerLog) StepLogPaths(int) (string, string) { return "", "" }

func TestRunNotifiesObserver(t *testing.T) {
	fr := &fakeRunner{}
	o := New(chainRegistry(), fr)
	obs := &observerLog{}

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Group(core.ParallelGroup{Tasks: []core.SequentialStep{{AgentName: "builder"}}}),
	}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) {
		ro.ChainDir = t.TempDir()
		ro.Observer = obs
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"run-started",
		"start:0:planner",
		"finish:0:planner:0",
		"parallel:1",
		"start:1:builder",
		"finish:1:builder:0",
		"run-finished:false",
	}, obs.events)
}

func TestRunNotifiesObserverOnFailure(t *testing.T) {
	fr := &fakeRunner{handler: func(spec runner.WorkerSpec) (*core.TaskResult, error) {
		return &core.TaskResult{AgentName: spec.AgentName, ExitCode: 1, ErrorMessage: "nope"}, nil
	}}
	o := New(chainRegistry(), fr)
	obs := &observerLog{}

	steps := []core.Step{core.Sequential(core.SequentialStep{AgentName: "planner"})}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) {
		ro.ChainDir = t.TempDir()
		ro.Observer = obs
	})
	require.Error(t, err)

	require.NotEmpty(t, obs.events)
	assert.Equal(t, "run-finished:true", obs.events[len(obs.events)-1])
}

func TestRunReportsStepsThroughRunLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LogLevelDebug,
		Format: "json",
		Output: &buf,
	}).WithComponent("chain")

	fr := &fakeRunner{}
	o := New(chainRegistry(), fr, func(opt *Options) { opt.Logger = logger })

	steps := []core.Step{
		core.Sequential(core.SequentialStep{AgentName: "planner"}),
		core.Sequential(core.SequentialStep{AgentName: "reviewer"}),
	}
	_, err := o.Run(context.Background(), steps, "task", func(ro *RunOptions) {
		ro.ChainDir = t.TempDir()
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Chain step completed"))
	assert.Contains(t, out, `"step_kind":"sequential"`)
	assert.Contains(t, out, `"component":"chain"`)
}
