package task

import (
	"time"

	"github.com/google/uuid"
)

// snapshotLimit bounds input/output snapshots recorded in traces.
const snapshotLimit = 500

// Trace is an append-only audit record of one orchestration pass.
// One trace is produced per pass and consumed by episodic memory.
type Trace struct {
	ID        uuid.UUID     `json:"id"`
	TaskID    uuid.UUID     `json:"task_id"`
	Agent     string        `json:"agent"`
	Action    string        `json:"action"`
	Input     string        `json:"input,omitempty"`
	Output    string        `json:"output,omitempty"`
	Duration  time.Duration `json:"duration"`
	Cost      float64       `json:"cost"`
	Tokens    int           `json:"tokens"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// NewTrace records a pass of the named agent over the task. Input and
// output are truncated to keep traces bounded.
func NewTrace(taskID uuid.UUID, agent, action, input, output string) *Trace {
	return &Trace{
		ID:        uuid.New(),
		TaskID:    taskID,
		Agent:     agent,
		Action:    action,
		Input:     Truncate(input, snapshotLimit),
		Output:    Truncate(output, snapshotLimit),
		Timestamp: time.Now().UTC(),
	}
}

// Truncate caps s at n bytes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
