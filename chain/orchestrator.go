package chain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chainwork/behavior"
	"chainwork/core"
	"chainwork/internal/util"
	"chainwork/logging"
	"chainwork/pool"
	"chainwork/runner"
)

// defaultGroupConcurrency bounds parallel groups that do not set a limit.
const defaultGroupConcurrency = 3

// TaskRunner executes one worker process per task. *runner.Runner is the
// production implementation; tests substitute fakes.
type TaskRunner interface {
	Run(ctx context.Context, spec runner.WorkerSpec) (*core.TaskResult, error)
}

// Observer mirrors leaf-step transitions, typically into the async run
// store. All methods are invoked from the orchestrator's control flow; the
// zero observer (nil) disables mirroring.
type Observer interface {
	RunStarted()
	ParallelStarted(agents []string)
	TaskStarted(flatIndex int, agent string)
	TaskFinished(flatIndex int, agent string, res *core.TaskResult)
	RunFinished(failed bool, summary string)

	// StepLogPaths supplies the per-leaf event and stderr capture paths;
	// empty strings disable capture for that leaf.
	StepLogPaths(flatIndex int) (eventLog, stderrLog string)
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// ConcurrencyLimit is the default cap for parallel groups without one.
	ConcurrencyLimit int
	// Logger receives structured diagnostics; defaults to NoOpLogger.
	Logger logging.Logger
}

// Orchestrator drives chain runs. It validates agent references step by step
// as the chain proceeds, delegates execution to the TaskRunner and manages
// the shared chain directory.
type Orchestrator struct {
	reg  core.Registry
	run  TaskRunner
	opts Options
}

// New constructs an Orchestrator with optional overrides.
func New(reg core.Registry, run TaskRunner, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		ConcurrencyLimit: defaultGroupConcurrency,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{reg: reg, run: run, opts: opts}
}

// RunOptions configures one chain run.
type RunOptions struct {
	// RunID identifies the run; generated when empty.
	RunID string
	// ChainDir is the shared directory for inter-step files; created under
	// the OS temp dir when empty.
	ChainDir string
	// OnProgress receives throttled task progress snapshots. May be nil.
	OnProgress func(*core.ProgressRecord)
	// Observer mirrors step transitions. May be nil.
	Observer Observer
}

// Result is the outcome of a chain run. On failure it still carries the
// results of every task that did complete, alongside the *ChainError.
type Result struct {
	RunID       string
	ChainDir    string
	Results     []*core.TaskResult
	FinalOutput string
}

// Run executes the chain. The task argument seeds the {task} variable for
// the whole run. Configuration errors (empty chain, empty first task,
// unknown agent) surface before the offending step spawns a process; step
// failures halt the chain with a *ChainError and a preserved chain
// directory.
func (o *Orchestrator) Run(ctx context.Context, steps []core.Step, task string, optFns ...func(ro *RunOptions)) (*Result, error) {
	if len(steps) == 0 {
		return nil, core.ErrEmptyChain
	}

	ro := RunOptions{RunID: core.NewRunID()}
	for _, fn := range optFns {
		fn(&ro)
	}
	if ro.ChainDir == "" {
		ro.ChainDir = filepath.Join(os.TempDir(), "chainwork", ro.RunID)
	}
	if err := os.MkdirAll(ro.ChainDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chain dir: %w", err)
	}

	rc := &RunContext{
		RunID:        ro.RunID,
		ChainDir:     ro.ChainDir,
		OriginalTask: task,
	}
	res := &Result{RunID: ro.RunID, ChainDir: ro.ChainDir}
	log := o.opts.Logger

	if ro.Observer != nil {
		ro.Observer.RunStarted()
	}

	for i, step := range steps {
		stepStart := time.Now()
		var stepErr error
		if group, ok := step.AsParallel(); ok {
			stepErr = o.runParallelStep(ctx, rc, res, &ro, i, group)
		} else if seq, ok := step.AsSequential(); ok {
			stepErr = o.runSequentialStep(ctx, rc, res, &ro, i, seq)
		} else {
			stepErr = fmt.Errorf("step %d is neither sequential nor parallel", i)
		}

		if rl, ok := log.(*logging.RunLogger); ok {
			rl.LogChainStep(i, stepKind(step), time.Since(stepStart), stepErr == nil, stepErr)
		}
		if stepErr != nil {
			if ro.Observer != nil {
				ro.Observer.RunFinished(true, stepErr.Error())
			}
			return res, stepErr
		}
	}

	res.FinalOutput = rc.PreviousOutput
	if ro.Observer != nil {
		ro.Observer.RunFinished(false, "")
	}
	return res, nil
}

func (o *Orchestrator) runSequentialStep(ctx context.Context, rc *RunContext, res *Result, ro *RunOptions, stepIndex int, step *core.SequentialStep) error {
	rb, err := behavior.Resolve(o.reg, step.AgentName, step.Overrides)
	if err != nil {
		return err
	}
	spec, _ := o.reg.Lookup(step.AgentName) // Resolve already verified presence

	template := behavior.TaskTemplate(o.reg, *step, stepIndex)
	text := util.SubstituteChainVars(template, rc.OriginalTask, rc.PreviousOutput, rc.ChainDir)
	if stepIndex == 0 && strings.TrimSpace(text) == "" {
		return core.ErrEmptyTask
	}

	// Relative output paths land in the shared chain directory.
	rb.OutputPath = namespacePath(rb.OutputPath, rc.ChainDir)

	createProgress := false
	if rb.ProgressTracking && !rc.ProgressFileCreated {
		createProgress = true
		rc.ProgressFileCreated = true
	}
	text += instructionText(rb, filepath.Join(rc.ChainDir, progressFileName), createProgress)

	flatIndex := rc.GlobalTaskIndex
	rc.GlobalTaskIndex++

	result, err := o.execute(ctx, ro, spec, step, text, flatIndex)
	if err != nil {
		return err
	}
	res.Results = append(res.Results, result)
	if result.Failed() {
		return &ChainError{
			FailedStepIndex: stepIndex,
			ChainDir:        rc.ChainDir,
			Failures:        []TaskFailure{{TaskIndex: 0, AgentName: step.AgentName, Message: result.ErrorMessage}},
		}
	}
	rc.PreviousOutput = result.Output
	return nil
}

func (o *Orchestrator) runParallelStep(ctx context.Context, rc *RunContext, res *Result, ro *RunOptions, stepIndex int, group *core.ParallelGroup) error {
	if len(group.Tasks) == 0 {
		return nil
	}

	// Resolve every task before launching anything: behaviors, templates and
	// namespaced output directories.
	type prepared struct {
		spec *core.AgentSpec
		step core.SequentialStep
		text string
	}
	prep := make([]prepared, len(group.Tasks))
	needsProgress := false
	for ti, gtask := range group.Tasks {
		rb, err := behavior.Resolve(o.reg, gtask.AgentName, gtask.Overrides)
		if err != nil {
			return err
		}
		spec, _ := o.reg.Lookup(gtask.AgentName)

		subDir := filepath.Join(rc.ChainDir, fmt.Sprintf("parallel-%d", stepIndex), fmt.Sprintf("%d-%s", ti, gtask.AgentName))
		if err := os.MkdirAll(subDir, 0o755); err != nil {
			return fmt.Errorf("create parallel task dir: %w", err)
		}
		// Agent-default (relative) outputs are namespaced under the task's
		// subdirectory; absolute override paths pass through.
		rb.OutputPath = namespacePath(rb.OutputPath, subDir)
		if rb.ProgressTracking {
			needsProgress = true
		}

		template := behavior.GroupTaskTemplate(o.reg, gtask)
		text := util.SubstituteChainVars(template, rc.OriginalTask, rc.PreviousOutput, rc.ChainDir)
		text += instructionText(rb, filepath.Join(rc.ChainDir, progressFileName), false)
		prep[ti] = prepared{spec: spec, step: gtask, text: text}
	}

	// Create the shared progress file once, before launch, so concurrently
	// starting tasks never race to create it.
	if needsProgress && !rc.ProgressFileCreated {
		progressPath := filepath.Join(rc.ChainDir, progressFileName)
		if err := os.WriteFile(progressPath, []byte("# Progress\n"), 0o644); err != nil {
			return fmt.Errorf("create progress file: %w", err)
		}
		rc.ProgressFileCreated = true
	}

	baseFlat := rc.GlobalTaskIndex
	rc.GlobalTaskIndex += len(group.Tasks)

	agents := make([]string, len(group.Tasks))
	for ti, gtask := range group.Tasks {
		agents[ti] = gtask.AgentName
	}
	if ro.Observer != nil {
		ro.Observer.ParallelStarted(agents)
	}

	tasks := make([]pool.Task, len(prep))
	for ti, p := range prep {
		ti, p := ti, p
		tasks[ti] = func(ctx context.Context) (*core.TaskResult, error) {
			return o.execute(ctx, ro, p.spec, &p.step, p.text, baseFlat+ti)
		}
	}

	limit := group.ConcurrencyLimit
	if limit <= 0 {
		limit = o.opts.ConcurrencyLimit
	}
	results, err := pool.RunTasks(ctx, tasks, limit, group.FailFast, func(i int) *core.TaskResult {
		skipped := core.NewSkippedResult(prep[i].step.AgentName, prep[i].text)
		if ro.Observer != nil {
			ro.Observer.TaskFinished(baseFlat+i, prep[i].step.AgentName, skipped)
		}
		return skipped
	})
	if err != nil {
		return err
	}
	res.Results = append(res.Results, results...)

	var failures []TaskFailure
	for ti, r := range results {
		if r != nil && r.Failed() {
			failures = append(failures, TaskFailure{TaskIndex: ti, AgentName: group.Tasks[ti].AgentName, Message: r.ErrorMessage})
		}
	}
	if len(failures) > 0 {
		return &ChainError{FailedStepIndex: stepIndex, ChainDir: rc.ChainDir, Failures: failures}
	}

	rc.PreviousOutput = AggregateOutputs(group.Tasks, results)
	return nil
}

// execute runs one leaf task through the TaskRunner, wiring log paths and
// observer transitions.
func (o *Orchestrator) execute(ctx context.Context, ro *RunOptions, spec *core.AgentSpec, step *core.SequentialStep, text string, flatIndex int) (*core.TaskResult, error) {
	var eventLog, stderrLog string
	if ro.Observer != nil {
		eventLog, stderrLog = ro.Observer.StepLogPaths(flatIndex)
		ro.Observer.TaskStarted(flatIndex, step.AgentName)
	}
	result, err := o.run.Run(ctx, runner.WorkerSpec{
		AgentName:     step.AgentName,
		Task:          text,
		Command:       spec.Command,
		Args:          workerArgs(spec),
		Dir:           step.WorkingDir,
		Index:         flatIndex,
		EventLogPath:  eventLog,
		StderrLogPath: stderrLog,
		OnProgress:    ro.OnProgress,
	})
	if err != nil {
		return nil, err
	}
	if ro.Observer != nil {
		ro.Observer.TaskFinished(flatIndex, step.AgentName, result)
	}
	return result, nil
}

// workerArgs assembles the worker argv from the agent spec; the task text is
// appended by the runner as the final positional argument.
func workerArgs(spec *core.AgentSpec) []string {
	args := append([]string(nil), spec.Args...)
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	return args
}

// namespacePath joins relative paths under base; absolute paths pass
// through untouched.
func namespacePath(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func stepKind(s core.Step) string {
	if s.IsParallel() {
		return "parallel"
	}
	return "sequential"
}
