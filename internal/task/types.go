package task

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors for task state transitions.
var (
	// ErrTerminal is returned when mutating a task that already reached
	// a terminal status (completed, failed, cancelled).
	ErrTerminal = errors.New("task is in a terminal state")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPlanning   Status = "planning"
	StatusExecuting  Status = "executing"
	StatusCritiquing Status = "critiquing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority is the scheduling priority of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps a string to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// Task is a unit of work flowing through the orchestration pipeline.
//
// Exported fields are set at construction or by the orchestrator.
// Status is guarded by a mutex because external pollers read it and may
// request cancellation while a run is in flight.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Hierarchy: subtasks produced by the planner point back at the
	// originating task via ParentID.
	ParentID     *uuid.UUID  `json:"parent_id,omitempty"`
	Dependencies []uuid.UUID `json:"dependencies,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	EstimatedComplexity float64 `json:"estimated_complexity,omitempty"`
	EstimatedCost       float64 `json:"estimated_cost,omitempty"`
	ActualCost          float64 `json:"actual_cost,omitempty"`

	// Context carries free-form key/value data consumed by the planner
	// and executor prompts. Retry feedback is attached here.
	Context map[string]any `json:"context,omitempty"`

	mu     sync.Mutex
	status Status
}

// New creates a pending task with the default retry budget.
func New(description string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New(),
		Description: description,
		Priority:    PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
		MaxRetries:  3,
		Context:     make(map[string]any),
		status:      StatusPending,
	}
}

// Status returns the current lifecycle status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus transitions the task to the given status. Transitions out of
// a terminal state are rejected with ErrTerminal, except that the
// orchestrator may not be interrupted mid-phase: cancellation takes
// effect at the next phase boundary.
func (t *Task) SetStatus(s Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return ErrTerminal
	}
	t.status = s
	t.UpdatedAt = time.Now().UTC()
	if s == StatusCompleted {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	return nil
}

// Cancel requests cooperative cancellation. It succeeds only before the
// task reaches COMPLETED or FAILED; an in-flight phase is not
// interrupted.
func (t *Task) Cancel() bool {
	return t.SetStatus(StatusCancelled) == nil
}

// Cancelled reports whether cancellation has been requested.
func (t *Task) Cancelled() bool {
	return t.Status() == StatusCancelled
}

// SetContext sets a context key, allocating the map if needed.
func (t *Task) SetContext(key string, value any) {
	if t.Context == nil {
		t.Context = make(map[string]any)
	}
	t.Context[key] = value
}

// taskJSON mirrors Task for serialization, exposing the guarded status.
type taskJSON struct {
	ID                  uuid.UUID      `json:"id"`
	Description         string         `json:"description"`
	Status              Status         `json:"status"`
	Priority            Priority       `json:"priority"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	ParentID            *uuid.UUID     `json:"parent_id,omitempty"`
	Dependencies        []uuid.UUID    `json:"dependencies,omitempty"`
	RetryCount          int            `json:"retry_count"`
	MaxRetries          int            `json:"max_retries"`
	Result              string         `json:"result,omitempty"`
	Error               string         `json:"error,omitempty"`
	EstimatedComplexity float64        `json:"estimated_complexity,omitempty"`
	EstimatedCost       float64        `json:"estimated_cost,omitempty"`
	ActualCost          float64        `json:"actual_cost,omitempty"`
	Context             map[string]any `json:"context,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{
		ID:                  t.ID,
		Description:         t.Description,
		Status:              t.Status(),
		Priority:            t.Priority,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		CompletedAt:         t.CompletedAt,
		ParentID:            t.ParentID,
		Dependencies:        t.Dependencies,
		RetryCount:          t.RetryCount,
		MaxRetries:          t.MaxRetries,
		Result:              t.Result,
		Error:               t.Error,
		EstimatedComplexity: t.EstimatedComplexity,
		EstimatedCost:       t.EstimatedCost,
		ActualCost:          t.ActualCost,
		Context:             t.Context,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Task) UnmarshalJSON(data []byte) error {
	var v taskJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.ID = v.ID
	t.Description = v.Description
	t.Priority = v.Priority
	t.CreatedAt = v.CreatedAt
	t.UpdatedAt = v.UpdatedAt
	t.CompletedAt = v.CompletedAt
	t.ParentID = v.ParentID
	t.Dependencies = v.Dependencies
	t.RetryCount = v.RetryCount
	t.MaxRetries = v.MaxRetries
	t.Result = v.Result
	t.Error = v.Error
	t.EstimatedComplexity = v.EstimatedComplexity
	t.EstimatedCost = v.EstimatedCost
	t.ActualCost = v.ActualCost
	t.Context = v.Context
	t.status = v.Status
	if t.status == "" {
		t.status = StatusPending
	}
	return nil
}
