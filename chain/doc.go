// Package chain drives an ordered list of steps (sequential tasks and
// parallel groups) against worker processes, passing data between steps via
// the {previous} chain variable.
//
// The orchestrator owns a single mutable RunContext for the lifetime of one
// chain run and halts on the first step failure, leaving the chain directory
// in place for postmortem inspection. Directory namespacing, chain-variable
// substitution and progress-file creation are all deterministic functions of
// step and task indices, so re-running an identical chain spec reproduces the
// same layout.
package chain
