package models

import "time"

// TaskState represents the current state of a task in its lifecycle.
type TaskState string

const (
	// TaskStatePending indicates the task is waiting on dependencies.
	TaskStatePending TaskState = "pending"
	// TaskStateReady indicates all dependencies are completed and the task
	// may be claimed.
	TaskStateReady TaskState = "ready"
	// TaskStateInProgress indicates an agent has claimed the task.
	TaskStateInProgress TaskState = "in_progress"
	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed indicates the task finished unsuccessfully.
	TaskStateFailed TaskState = "failed"
	// TaskStateBlocked indicates a dependency failed. Blocked is terminal.
	TaskStateBlocked TaskState = "blocked"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateReady, TaskStateInProgress,
		TaskStateCompleted, TaskStateFailed, TaskStateBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are legal from this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateBlocked:
		return true
	default:
		return false
	}
}

// Task represents a unit of work in the orchestration graph.
type Task struct {
	// ID is the unique, generated identifier for this task.
	ID string `json:"id"`
	// Description is what the task asks an agent to do.
	Description string `json:"description"`
	// Priority orders ready tasks for assignment (1 lowest, 10 highest).
	Priority int `json:"priority"`
	// EstimatedEffort is a relative size hint (1-10).
	EstimatedEffort int `json:"estimated_effort"`
	// RequiredCapabilities lists skill tags an assignee must have.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// Dependencies lists task IDs that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// Assignee is the ID of the agent that claimed the task, if any.
	Assignee string `json:"assignee,omitempty"`
	// Result is the opaque payload reported at completion or failure.
	Result string `json:"result,omitempty"`
	// BlockedBy is the failed dependency that blocked this task, if any.
	BlockedBy string `json:"blocked_by,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// FinalizedAt is when the task reached a terminal state, if it has.
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// Assignment records one scheduler-made pairing of a task and an agent.
type Assignment struct {
	// TaskID is the assigned task.
	TaskID string `json:"task_id"`
	// AgentID is the agent that now holds the claim.
	AgentID string `json:"agent_id"`
}
