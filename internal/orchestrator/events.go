// Package orchestrator wires the registry, task graph, scheduler, claim
// manager, and collaboration services into a single facade.
package orchestrator

import (
	"time"
)

// EventType identifies the kind of orchestrator event.
type EventType string

const (
	// EventAgentRegistered indicates an agent joined the registry.
	EventAgentRegistered EventType = "agent_registered"
	// EventTaskSubmitted indicates a task was accepted into the graph.
	EventTaskSubmitted EventType = "task_submitted"
	// EventTaskReady indicates a task's dependencies are all satisfied.
	EventTaskReady EventType = "task_ready"
	// EventTaskClaimed indicates an agent took ownership of a task.
	EventTaskClaimed EventType = "task_claimed"
	// EventTaskCompleted indicates a task finished successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task finished unsuccessfully.
	EventTaskFailed EventType = "task_failed"
	// EventTaskBlocked indicates a task was blocked by an upstream failure.
	EventTaskBlocked EventType = "task_blocked"
	// EventSessionOpened indicates a collaboration session was created.
	EventSessionOpened EventType = "session_opened"
	// EventMessagePosted indicates a message was appended to a session.
	EventMessagePosted EventType = "message_posted"
	// EventConsensusBuilt indicates a consensus was computed for a session.
	EventConsensusBuilt EventType = "consensus_built"
)

// Event is emitted by the orchestrator as state changes. Subscribers such
// as the websocket stream receive these to track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// TaskID is the ID of the related task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// AgentID is the ID of the related agent, if applicable.
	AgentID string `json:"agent_id,omitempty"`
	// SessionID is the ID of the related session, if applicable.
	SessionID string `json:"session_id,omitempty"`
	// Message provides additional context about the event.
	Message string `json:"message,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
