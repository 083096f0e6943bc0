package core

// TaskStatus is the lifecycle of one leaf execution.
type TaskStatus string

const (
	// StatusPending marks a task accepted but not yet started.
	StatusPending TaskStatus = "pending"
	// StatusRunning marks a task whose worker process is alive.
	StatusRunning TaskStatus = "running"
	// StatusCompleted marks a task that finished with exit code 0.
	StatusCompleted TaskStatus = "completed"
	// StatusFailed marks a task that finished unsuccessfully.
	StatusFailed TaskStatus = "failed"
)

// Ring capacities for live progress views. Long-running tasks emit thousands
// of events; these caps keep a ProgressRecord at a fixed footprint.
const (
	MaxRecentTools  = 5
	MaxRecentOutput = 50
)

// ProgressRecord is the bounded live view of a running task. It is updated at
// high frequency by the runner and throttled before reaching any listener.
type ProgressRecord struct {
	Index        int        `json:"index"`
	AgentName    string     `json:"agent"`
	Status       TaskStatus `json:"status"`
	CurrentTool  string     `json:"current_tool,omitempty"`
	RecentTools  []string   `json:"recent_tools,omitempty"`
	RecentOutput []string   `json:"recent_output,omitempty"`
	ToolCount    int        `json:"tool_count"`
	TokenCount   int        `json:"token_count"`
	DurationMs   int64      `json:"duration_ms"`
	Error        string     `json:"error,omitempty"`
}

// PushTool records a finished tool at the front of the recent-tools ring,
// evicting the oldest entry past MaxRecentTools.
func (p *ProgressRecord) PushTool(name string) {
	p.RecentTools = append([]string{name}, p.RecentTools...)
	if len(p.RecentTools) > MaxRecentTools {
		p.RecentTools = p.RecentTools[:MaxRecentTools]
	}
}

// PushOutput appends output lines in global insertion order, evicting the
// oldest entries past MaxRecentOutput.
func (p *ProgressRecord) PushOutput(lines ...string) {
	p.RecentOutput = append(p.RecentOutput, lines...)
	if n := len(p.RecentOutput); n > MaxRecentOutput {
		p.RecentOutput = p.RecentOutput[n-MaxRecentOutput:]
	}
}

// Clone returns a snapshot safe to hand to listeners while the runner keeps
// mutating the original.
func (p *ProgressRecord) Clone() *ProgressRecord {
	c := *p
	c.RecentTools = append([]string(nil), p.RecentTools...)
	c.RecentOutput = append([]string(nil), p.RecentOutput...)
	return &c
}
