package runner

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"chainwork/core"
)

// toolErrorPatterns is the heuristic used to infer a failure from the text of
// an otherwise successful shell-style tool result. It is a policy knob, not a
// contract; adjust per deployment if workers embed exit codes differently.
var toolErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)^exit code:?\s*([1-9][0-9]*)\b`),
	regexp.MustCompile(`(?mi)\bexit status:?\s*([1-9][0-9]*)\b`),
}

// taskState owns all mutable per-task data while the worker process is
// alive. All mutation goes through its mutex because the throttle timer reads
// snapshots concurrently with the stream reader.
type taskState struct {
	mu sync.Mutex

	result   *core.TaskResult
	progress *core.ProgressRecord
	started  time.Time

	// lastToolError holds the most recent error-marked or error-inferred tool
	// result; any later successful tool result clears it.
	lastToolError string

	// messages retains assistant texts for the final output scalar, capped at
	// maxMessages with the oldest dropped.
	messages    []string
	maxMessages int
}

func newTaskState(agentName, task string, index, maxMessages int) *taskState {
	return &taskState{
		result: &core.TaskResult{
			AgentName: agentName,
			Task:      task,
		},
		progress: &core.ProgressRecord{
			Index:     index,
			AgentName: agentName,
			Status:    core.StatusRunning,
		},
		started:     time.Now(),
		maxMessages: maxMessages,
	}
}

// apply folds one wire event into the task state. It reports whether the
// event warrants an immediate (unthrottled) progress emission.
func (s *taskState) apply(ev *core.WireEvent) (immediate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case core.EventToolExecutionStart:
		s.progress.ToolCount++
		s.progress.CurrentTool = formatToolCall(ev.ToolName, ev.ToolArgs)
		return true

	case core.EventToolExecutionEnd:
		if ev.ToolName != "" {
			s.progress.PushTool(ev.ToolName)
		}
		s.progress.CurrentTool = ""

	case core.EventMessageEnd:
		if ev.Role != "assistant" {
			return false
		}
		if ev.Usage != nil {
			s.result.Usage.Add(core.Usage{
				InputTokens:      ev.Usage.InputTokens,
				OutputTokens:     ev.Usage.OutputTokens,
				CacheReadTokens:  ev.Usage.CacheReadTokens,
				CacheWriteTokens: ev.Usage.CacheWriteTokens,
				TotalCostUSD:     ev.Usage.TotalCostUSD,
			})
			s.progress.TokenCount = s.result.Usage.TotalTokens()
		}
		if ev.Model != "" {
			s.result.ModelUsed = ev.Model
		}
		s.result.Turns++
		if ev.Content != "" {
			lines := strings.Split(ev.Content, "\n")
			s.progress.PushOutput(lines...)
			s.messages = append(s.messages, ev.Content)
			if len(s.messages) > s.maxMessages {
				s.messages = s.messages[len(s.messages)-s.maxMessages:]
			}
		}

	case core.EventToolResultEnd:
		if ev.Output != "" {
			s.progress.PushOutput(strings.Split(ev.Output, "\n")...)
		}
		if ev.IsError {
			s.lastToolError = firstNonEmpty(ev.Output, "tool reported an error")
		} else if code, ok := inferToolExitCode(ev.Output); ok {
			s.lastToolError = "tool exited with code " + strconv.Itoa(code) + ": " + headLine(ev.Output)
		} else {
			s.lastToolError = ""
		}
	}
	return false
}

// finalOutput joins the retained assistant texts in arrival order.
func (s *taskState) finalOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.messages, "\n")
}

// snapshot returns a listener-safe copy of the progress record with the
// duration refreshed.
func (s *taskState) snapshot() *core.ProgressRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.DurationMs = time.Since(s.started).Milliseconds()
	return s.progress.Clone()
}

// inferToolExitCode scans tool output for an embedded non-zero exit code.
func inferToolExitCode(output string) (int, bool) {
	for _, pat := range toolErrorPatterns {
		if m := pat.FindStringSubmatch(output); m != nil {
			code, err := strconv.Atoi(m[1])
			if err == nil && code != 0 {
				return code, true
			}
		}
	}
	return 0, false
}

// formatToolCall renders a tool name with a shortened argument preview.
func formatToolCall(name, args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		return name
	}
	const previewLen = 80
	if len(args) > previewLen {
		args = args[:previewLen] + "…"
	}
	return name + " " + args
}

func headLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
