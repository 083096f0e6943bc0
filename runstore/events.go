package runstore

import "time"

// Event types appended to events.jsonl.
const (
	EventRunStarted      = "run.started"
	EventParallelStarted = "parallel.started"
	EventTaskStarted     = "task.started"
	EventTaskFinished    = "task.finished"
	EventRunCompleted    = "run.completed"
	EventRunFailed       = "run.failed"
)

// Event is one structured entry of a run's append-only event log.
type Event struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	FlatIndex *int      `json:"flat_index,omitempty"`
	AgentName string    `json:"agent,omitempty"`
	Agents    []string  `json:"agents,omitempty"`
	Count     int       `json:"count,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// NewEvent builds an event stamped with the current UTC time.
func NewEvent(typ string) Event {
	return Event{Type: typ, Time: time.Now().UTC()}
}

// WithStep attaches a flattened step index and agent name.
func (e Event) WithStep(flatIndex int, agent string) Event {
	e.FlatIndex = &flatIndex
	e.AgentName = agent
	return e
}

// WithExitCode attaches a task exit code.
func (e Event) WithExitCode(code int) Event {
	e.ExitCode = &code
	return e
}

// WithAgents attaches the participating agent list of a parallel group.
func (e Event) WithAgents(agents []string) Event {
	e.Agents = agents
	e.Count = len(agents)
	return e
}

// WithMessage attaches free-form detail text.
func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}
