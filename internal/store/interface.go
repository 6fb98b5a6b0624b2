// Package store provides persistence for orchestration state. The core
// consumes it as a durable map: one record per agent, task, and session,
// keyed by id. Components receive the focused sub-interface they need.
package store

import (
	"io"

	"github.com/mkretch/quorum/pkg/models"
)

// AgentStore handles agent record persistence.
type AgentStore interface {
	// PutAgent inserts or overwrites an agent record.
	PutAgent(a *models.Agent) error
	// GetAgent returns the agent or (nil, nil) if the id is unknown.
	GetAgent(id string) (*models.Agent, error)
	// ListAgents returns all agents ordered by id.
	ListAgents() ([]*models.Agent, error)
}

// TaskStore handles task record persistence.
type TaskStore interface {
	// PutTask inserts or overwrites a task record.
	PutTask(t *models.Task) error
	// GetTask returns the task or (nil, nil) if the id is unknown.
	GetTask(id string) (*models.Task, error)
	// ListTasks returns tasks ordered by id, optionally filtered by state
	// and/or assignee (empty values mean no filter).
	ListTasks(state models.TaskState, assignee string) ([]*models.Task, error)
}

// SessionStore handles collaboration session persistence.
type SessionStore interface {
	// PutSession inserts or overwrites a session record.
	PutSession(s *models.Session) error
	// GetSession returns the session or (nil, nil) if the id is unknown.
	GetSession(id string) (*models.Session, error)
	// ListSessions returns all sessions ordered by id.
	ListSessions() ([]*models.Session, error)
}

// Migrator applies pending schema migrations. In-memory stores no-op this.
type Migrator interface {
	Migrate() error
}

// StateStore is the full persistence surface the orchestrator is built on.
// It composes focused sub-interfaces so components can depend narrowly.
type StateStore interface {
	io.Closer
	Migrator
	AgentStore
	TaskStore
	SessionStore
}

// Compile-time verification that both implementations satisfy the interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ StateStore = (*Memory)(nil)
)
