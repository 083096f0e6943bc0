package core

// SkippedExitCode marks a task that was never started because a fail-fast
// sibling already failed. It is distinguishable from every real process exit.
const SkippedExitCode = -1

// Usage accumulates token and cost totals across a task's assistant turns.
type Usage struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens"`
	CacheWriteTokens int     `json:"cache_write_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// Add merges the other usage into u.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadTokens += o.CacheReadTokens
	u.CacheWriteTokens += o.CacheWriteTokens
	u.TotalCostUSD += o.TotalCostUSD
}

// TotalTokens returns the combined token count across all categories.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Truncation records that a task's final output was cut to fit the configured
// byte/line caps.
type Truncation struct {
	Truncated     bool   `json:"truncated"`
	OriginalBytes int    `json:"original_bytes"`
	OriginalLines int    `json:"original_lines"`
	Note          string `json:"note,omitempty"`
}

// TaskResult is the per-task record created at task start with ExitCode 0,
// mutated incrementally by the runner as events arrive and frozen at process
// exit. Orchestration code reads it only after the task has finished.
type TaskResult struct {
	AgentName     string          `json:"agent"`
	Task          string          `json:"task"`
	ExitCode      int             `json:"exit_code"`
	ErrorMessage  string          `json:"error,omitempty"`
	Output        string          `json:"output"`
	Usage         Usage           `json:"usage"`
	ModelUsed     string          `json:"model,omitempty"`
	Turns         int             `json:"turns"`
	Progress      *ProgressRecord `json:"progress,omitempty"`
	Truncation    *Truncation     `json:"truncation,omitempty"`
	ArtifactPaths []string        `json:"artifacts,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
}

// Failed reports whether the task ended in a real failure. A skipped task is
// not a failure.
func (r *TaskResult) Failed() bool {
	return r.ExitCode != 0 && r.ExitCode != SkippedExitCode
}

// Skipped reports whether the task was skipped by fail-fast scheduling.
func (r *TaskResult) Skipped() bool { return r.ExitCode == SkippedExitCode }

// NewSkippedResult builds the synthetic result for a task replaced by
// fail-fast short-circuiting.
func NewSkippedResult(agentName, task string) *TaskResult {
	return &TaskResult{
		AgentName:    agentName,
		Task:         task,
		ExitCode:     SkippedExitCode,
		ErrorMessage: "skipped: earlier task in fail-fast group failed",
	}
}
