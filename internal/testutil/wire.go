// Package testutil provides builders for worker protocol lines and fake
// worker executables used across the test suites.
package testutil

import (
	"encoding/json"

	"chainwork/core"
)

// ToolStartLine builds a tool_execution_start protocol line.
func ToolStartLine(tool, args string) string {
	return marshalLine(core.WireEvent{Type: core.EventToolExecutionStart, ToolName: tool, ToolArgs: args})
}

// ToolEndLine builds a tool_execution_end protocol line.
func ToolEndLine(tool string) string {
	return marshalLine(core.WireEvent{Type: core.EventToolExecutionEnd, ToolName: tool})
}

// MessageLine builds an assistant message_end protocol line.
func MessageLine(content string, usage *core.WireUsage) string {
	return marshalLine(core.WireEvent{Type: core.EventMessageEnd, Role: "assistant", Content: content, Usage: usage})
}

// ModelMessageLine builds an assistant message_end line that also reports the
// serving model.
func ModelMessageLine(content, model string, usage *core.WireUsage) string {
	return marshalLine(core.WireEvent{Type: core.EventMessageEnd, Role: "assistant", Content: content, Model: model, Usage: usage})
}

// ToolResultLine builds a tool_result_end protocol line.
func ToolResultLine(tool, output string, isError bool) string {
	return marshalLine(core.WireEvent{Type: core.EventToolResultEnd, ToolName: tool, Output: output, IsError: isError})
}

func marshalLine(ev core.WireEvent) string {
	data, err := json.Marshal(ev)
	if err != nil {
		panic(err) // builders only receive marshalable values
	}
	return string(data)
}
