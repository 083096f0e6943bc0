// Package runner executes one task per worker process and translates the
// worker's streamed JSON events into a bounded-memory TaskResult and live
// ProgressRecord.
//
// Responsibilities:
//
//   - Spawning the worker binary with the task text as final positional
//     argument and capturing stdout/stderr
//   - Splitting stdout on newline boundaries, retaining incomplete trailing
//     fragments across chunks, and parsing each line as a wire event
//   - Incrementally updating the task's result and progress record under the
//     caps defined in package core
//   - Throttled progress emission (coalesced, with forced immediate emission
//     on tool transitions)
//   - Mirroring the raw event stream to an optional event log through a
//     backpressure-aware writer
//   - Hidden-failure detection: a zero exit code is promoted to a failure
//     when the last tool result reported an error
//   - Cooperative cancellation: SIGTERM first, SIGKILL after a grace period
//
// The runner never interprets task semantics; it reports what the worker did.
package runner
