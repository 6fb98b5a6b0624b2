// Package collab manages multi-agent discussion sessions tied to a task and
// aggregates per-agent positions into a consensus with a quantified
// agreement score.
package collab

import (
	"time"

	"github.com/google/uuid"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/locks"
	"github.com/mkretch/quorum/internal/registry"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

// Coordinator owns collaboration session records.
type Coordinator struct {
	sessions store.SessionStore
	tasks    store.TaskStore
	agents   *registry.Registry
	// locks serializes mutations per session id. Sessions have their own
	// table; task locks are never taken here.
	locks *locks.Table
	// newID generates session IDs; injectable for tests.
	newID func() string
	// now is injectable for tests.
	now func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(sessions store.SessionStore, tasks store.TaskStore, agents *registry.Registry) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		tasks:    tasks,
		agents:   agents,
		locks:    locks.NewTable(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// SetIDFunc overrides the session ID generator (for tests).
func (c *Coordinator) SetIDFunc(fn func() string) {
	c.newID = fn
}

// SetClock overrides the coordinator's time source (for tests).
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Open creates a session for a task with the given participants. The task
// and every participant must exist.
func (c *Coordinator) Open(taskID string, participantIDs []string) (*models.Session, error) {
	if len(participantIDs) == 0 {
		return nil, fault.New(fault.CodeInvalidArgument, "session needs at least one participant")
	}

	t, err := c.tasks.GetTask(taskID)
	if err != nil {
		return nil, fault.Internal(err, "get task %s", taskID)
	}
	if t == nil {
		return nil, fault.New(fault.CodeNotFound, "task %s does not exist", taskID)
	}
	for _, id := range participantIDs {
		if _, err := c.agents.Get(id); err != nil {
			return nil, err
		}
	}

	s := &models.Session{
		ID:           c.newID(),
		TaskID:       taskID,
		Participants: append([]string(nil), participantIDs...),
		Messages:     []models.Message{},
		CreatedAt:    c.now(),
	}
	if err := c.sessions.PutSession(s); err != nil {
		return nil, fault.Internal(err, "put session %s", s.ID)
	}
	return s, nil
}

// PostMessage appends a message to the session log in arrival order.
// Arrival order is authoritative; timestamps are informational.
func (c *Coordinator) PostMessage(sessionID, from, content string) (*models.Message, error) {
	release, err := c.locks.Acquire(sessionID, 0)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := c.sessions.GetSession(sessionID)
	if err != nil {
		return nil, fault.Internal(err, "get session %s", sessionID)
	}
	if s == nil {
		return nil, fault.New(fault.CodeNotFound, "session %s does not exist", sessionID)
	}
	if !s.HasParticipant(from) {
		return nil, fault.New(fault.CodeForbidden, "agent %s is not a participant of session %s", from, sessionID)
	}

	msg := models.Message{From: from, Content: content, Timestamp: c.now()}
	s.Messages = append(s.Messages, msg)
	if err := c.sessions.PutSession(s); err != nil {
		return nil, fault.Internal(err, "put session %s", sessionID)
	}
	return &msg, nil
}

// Get returns the session or a not-found fault.
func (c *Coordinator) Get(sessionID string) (*models.Session, error) {
	s, err := c.sessions.GetSession(sessionID)
	if err != nil {
		return nil, fault.Internal(err, "get session %s", sessionID)
	}
	if s == nil {
		return nil, fault.New(fault.CodeNotFound, "session %s does not exist", sessionID)
	}
	return s, nil
}

// lockTable exposes the session lock table to the consensus builder so both
// mutate sessions under the same discipline.
func (c *Coordinator) lockTable() *locks.Table {
	return c.locks
}
