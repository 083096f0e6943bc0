package core

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Wire event discriminators. These are the contract with the worker binary
// and must not be renamed.
const (
	EventToolExecutionStart = "tool_execution_start"
	EventToolExecutionEnd   = "tool_execution_end"
	EventMessageEnd         = "message_end"
	EventToolResultEnd      = "tool_result_end"
)

// WireUsage mirrors the usage block of a message_end event.
type WireUsage struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	CacheReadTokens  int     `json:"cache_read_input_tokens"`
	CacheWriteTokens int     `json:"cache_creation_input_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// WireEvent is one newline-delimited JSON record on a worker's stdout.
// Fields are populated depending on Type:
//
//	tool_execution_start: ToolName, ToolArgs
//	tool_execution_end:   ToolName
//	message_end:          Role, Content, Model, Usage
//	tool_result_end:      ToolName, Output, IsError
type WireEvent struct {
	Type     string     `json:"type"`
	ToolName string     `json:"tool_name,omitempty"`
	ToolArgs string     `json:"tool_args,omitempty"`
	Role     string     `json:"role,omitempty"`
	Content  string     `json:"content,omitempty"`
	Model    string     `json:"model,omitempty"`
	Usage    *WireUsage `json:"usage,omitempty"`
	Output   string     `json:"output,omitempty"`
	IsError  bool       `json:"is_error,omitempty"`
}

// ParseWireEvent decodes one protocol line. The protocol is best-effort: a
// corrupt or unknown line returns ok=false and must not abort the task. The
// type discriminator is sniffed before the full unmarshal so arbitrary junk
// on stdout is rejected cheaply.
func ParseWireEvent(line string) (*WireEvent, bool) {
	if len(line) == 0 || !gjson.Valid(line) {
		return nil, false
	}
	typ := gjson.Get(line, "type").String()
	switch typ {
	case EventToolExecutionStart, EventToolExecutionEnd, EventMessageEnd, EventToolResultEnd:
	default:
		return nil, false
	}
	var ev WireEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return nil, false
	}
	return &ev, true
}
