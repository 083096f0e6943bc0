// Package runstore persists the flattened state machine of a background run
// so it can be inspected after the caller detaches, across process restarts.
//
// Layout under the store root, one directory per run:
//
//	<root>/<run-id>/status.json      current Record (atomic replace)
//	<root>/<run-id>/events.jsonl     append-only structured event stream
//	<root>/<run-id>/output-<n>.log   raw worker output per flattened leaf step
//	<root>/<run-id>/stderr-<n>.log   captured stderr tail per leaf step
//
// The Record is the single source of truth for status inspection: a caller
// holding only a run id or directory path reconstructs full progress from
// status.json plus the event log alone. Records are never deleted by the
// engine; retention is an external concern.
package runstore
