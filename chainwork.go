// Package chainwork provides a high-level façade over the execution engine:
// behavior resolution, single-task and chain runs against local worker
// processes, and durable background runs inspectable through the run store.
// Most applications interact with this package by:
//
//  1. Creating an Engine via New() with a registry of agents
//  2. Running work synchronously (RunTask, RunChain) with live progress
//     callbacks, or in the background (RunTaskAsync, RunChainAsync)
//  3. Polling background runs later via ReadAsyncStatus / ListRuns
//
// The façade delegates orchestration to chain.Orchestrator and process
// execution to runner.Runner while keeping setup ergonomics concise.
package chainwork

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"chainwork/behavior"
	"chainwork/chain"
	"chainwork/core"
	"chainwork/logging"
	"chainwork/runner"
	"chainwork/runstore"
)

// Options configures the Engine.
type Options struct {
	// Registry resolves agent names; required for any run to succeed.
	Registry core.Registry
	// StoreDir roots the async run store. Defaults to $HOME/.chainwork/runs
	// (falling back to the OS temp dir).
	StoreDir string
	// ConcurrencyLimit is the default cap for parallel groups without one.
	ConcurrencyLimit int
	// Logger receives structured diagnostics; defaults to NoOpLogger.
	Logger logging.Logger
	// RunnerOptions tweaks the worker process runner.
	RunnerOptions []func(o *runner.Options)
}

// Engine aggregates the registry, worker runner, orchestrator and run store.
type Engine struct {
	reg   core.Registry
	orch  *chain.Orchestrator
	store *runstore.Store
	log   logging.Logger
}

// New creates an Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.StoreDir == "" {
		opts.StoreDir = defaultStoreDir()
	}

	runnerOpts := append([]func(o *runner.Options){func(o *runner.Options) { o.Logger = opts.Logger }}, opts.RunnerOptions...)
	run := runner.New(runnerOpts...)
	orch := chain.New(opts.Registry, run, func(o *chain.Options) {
		o.Logger = opts.Logger
		if opts.ConcurrencyLimit > 0 {
			o.ConcurrencyLimit = opts.ConcurrencyLimit
		}
	})
	store := runstore.New(opts.StoreDir, func(o *runstore.Options) { o.Logger = opts.Logger })

	return &Engine{reg: opts.Registry, orch: orch, store: store, log: opts.Logger}
}

// Store exposes the async run store (status files, event logs).
func (e *Engine) Store() *runstore.Store { return e.store }

// ResolveBehavior computes the effective file-I/O behavior for one agent and
// override set without running anything.
func (e *Engine) ResolveBehavior(agentName string, ov core.BehaviorOverrides) (core.ResolvedBehavior, error) {
	return behavior.Resolve(e.reg, agentName, ov)
}

// TaskOptions configures a single-task run.
type TaskOptions struct {
	WorkingDir string
	Overrides  core.BehaviorOverrides
	OnProgress func(*core.ProgressRecord)
}

// RunTask executes one task synchronously as a single-step chain, so file
// behavior, instruction text and chain-directory handling match chain runs.
func (e *Engine) RunTask(ctx context.Context, agentName, task string, optFns ...func(o *TaskOptions)) (*core.TaskResult, error) {
	var to TaskOptions
	for _, fn := range optFns {
		fn(&to)
	}
	steps := []core.Step{core.Sequential(core.SequentialStep{
		AgentName:  agentName,
		WorkingDir: to.WorkingDir,
		Overrides:  to.Overrides,
	})}
	res, err := e.orch.Run(ctx, steps, task, func(ro *chain.RunOptions) {
		ro.OnProgress = to.OnProgress
	})
	if err != nil {
		if res != nil && len(res.Results) == 1 {
			return res.Results[0], err
		}
		return nil, err
	}
	return res.Results[0], nil
}

// ChainOptions configures a chain run.
type ChainOptions struct {
	ChainDir   string
	OnProgress func(*core.ProgressRecord)
}

// RunChain executes a chain synchronously, blocking until completion while
// streaming throttled progress to the callback.
func (e *Engine) RunChain(ctx context.Context, steps []core.Step, task string, optFns ...func(o *ChainOptions)) (*chain.Result, error) {
	var co ChainOptions
	for _, fn := range optFns {
		fn(&co)
	}
	return e.orch.Run(ctx, steps, task, func(ro *chain.RunOptions) {
		ro.ChainDir = co.ChainDir
		ro.OnProgress = co.OnProgress
	})
}

// RunChainAsync accepts a chain for background execution. The run record is
// persisted with every leaf pending before this returns, so a status file
// exists as soon as the run is accepted. The returned run id is the handle
// for later inspection.
func (e *Engine) RunChainAsync(ctx context.Context, steps []core.Step, task string) (string, error) {
	return e.startAsync(ctx, steps, task, runstore.ModeChain)
}

// RunTaskAsync accepts a single task for background execution.
func (e *Engine) RunTaskAsync(ctx context.Context, agentName, task string) (string, error) {
	steps := []core.Step{core.Sequential(core.SequentialStep{AgentName: agentName})}
	return e.startAsync(ctx, steps, task, runstore.ModeSingle)
}

func (e *Engine) startAsync(ctx context.Context, steps []core.Step, task string, mode runstore.RunMode) (string, error) {
	if len(steps) == 0 {
		return "", core.ErrEmptyChain
	}
	runID := core.NewRunID()
	rec := runstore.NewRecord(runID, mode, steps)
	if err := e.store.Create(rec); err != nil {
		return "", fmt.Errorf("persist run record: %w", err)
	}

	// The run outlives the caller's context; only explicit cancellation of
	// the engine-level context (not the accept call) should stop it.
	go e.runDetached(context.WithoutCancel(ctx), runID, steps, task)
	return runID, nil
}

// runDetached drives one background run to completion and keeps the persisted
// record honest. Orchestration errors that fire before the observer saw any
// transition (chain-dir setup, resolution at step zero) would otherwise leave
// the record pending forever, so any error here force-marks the run failed
// unless the observer already did.
func (e *Engine) runDetached(ctx context.Context, runID string, steps []core.Step, task string) {
	_, err := e.orch.Run(ctx, steps, task, func(ro *chain.RunOptions) {
		ro.RunID = runID
		ro.ChainDir = filepath.Join(e.store.RunDir(runID), "chain")
		ro.Observer = newRecorder(e.store, runID)
	})
	if err == nil {
		return
	}
	e.log.Error("background run failed", "run_id", runID, "error", err.Error())
	if rec, rerr := e.store.Read(runID); rerr == nil && rec.State != runstore.RunFailed {
		_ = e.store.SetState(runID, runstore.RunFailed)
		_ = e.store.AppendEvent(runID, runstore.NewEvent(runstore.EventRunFailed).WithMessage(err.Error()))
	}
}

// ReadAsyncStatus loads the persisted record for a run id or run directory.
// A missing run yields (nil, runstore.ErrNotFound).
func (e *Engine) ReadAsyncStatus(runIDOrDir string) (*runstore.Record, error) {
	return e.store.Read(runIDOrDir)
}

// ListRuns returns all persisted runs, newest first.
func (e *Engine) ListRuns() ([]*runstore.Record, error) {
	return e.store.List()
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "chainwork", "runs")
	}
	return filepath.Join(home, ".chainwork", "runs")
}
