// Package core defines the shared data model for chainwork: chain steps and
// their flattened form, resolved file behavior, task results, live progress
// records and the worker wire protocol.
//
// Types here are deliberately free of execution logic. Ownership rules:
//
//   - Step values are caller-supplied and read-only during a run.
//   - ResolvedBehavior is computed once per step and immutable afterwards.
//   - TaskResult is mutated exclusively by the worker runner while the task is
//     in flight and frozen at process exit; orchestration code only reads it.
//   - ProgressRecord is a bounded live view; its rings never grow past their
//     caps regardless of input volume.
//
// The wire protocol types mirror the JSON event stream emitted by worker
// processes byte-for-byte; see protocol.go.
package core
