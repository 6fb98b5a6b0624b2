package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mkretch/quorum/pkg/models"
)

// Memory is an in-process StateStore. It is the default backend for tests
// and for running without a database path configured.
type Memory struct {
	mu       sync.RWMutex
	agents   map[string]*models.Agent
	tasks    map[string]*models.Task
	sessions map[string]*models.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		agents:   make(map[string]*models.Agent),
		tasks:    make(map[string]*models.Task),
		sessions: make(map[string]*models.Session),
	}
}

// Close implements io.Closer.
func (m *Memory) Close() error { return nil }

// Migrate implements Migrator.
func (m *Memory) Migrate() error { return nil }

// PutAgent stores a copy of the agent record.
func (m *Memory) PutAgent(a *models.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("put agent: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = cloneAgent(a)
	return nil
}

// GetAgent returns a copy of the agent, or (nil, nil) if unknown.
func (m *Memory) GetAgent(id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, nil
	}
	return cloneAgent(a), nil
}

// ListAgents returns copies of all agents ordered by id.
func (m *Memory) ListAgents() ([]*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutTask stores a copy of the task record.
func (m *Memory) PutTask(t *models.Task) error {
	if t.ID == "" {
		return fmt.Errorf("put task: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = cloneTask(t)
	return nil
}

// GetTask returns a copy of the task, or (nil, nil) if unknown.
func (m *Memory) GetTask(id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return cloneTask(t), nil
}

// ListTasks returns copies of matching tasks ordered by id.
func (m *Memory) ListTasks(state models.TaskState, assignee string) ([]*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if state != "" && t.State != state {
			continue
		}
		if assignee != "" && t.Assignee != assignee {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutSession stores a copy of the session record.
func (m *Memory) PutSession(s *models.Session) error {
	if s.ID == "" {
		return fmt.Errorf("put session: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

// GetSession returns a copy of the session, or (nil, nil) if unknown.
func (m *Memory) GetSession(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

// ListSessions returns copies of all sessions ordered by id.
func (m *Memory) ListSessions() ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Records are copied on the way in and out so callers never share slices
// with the store's internal state.

func cloneAgent(a *models.Agent) *models.Agent {
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	return &c
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	c.RequiredCapabilities = append([]string(nil), t.RequiredCapabilities...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	if t.FinalizedAt != nil {
		ft := *t.FinalizedAt
		c.FinalizedAt = &ft
	}
	return &c
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	c.Participants = append([]string(nil), s.Participants...)
	c.Messages = append([]models.Message(nil), s.Messages...)
	if s.Consensus != nil {
		cc := *s.Consensus
		cc.AgreedPoints = append([]string(nil), s.Consensus.AgreedPoints...)
		cc.DisagreedPoints = append([]string(nil), s.Consensus.DisagreedPoints...)
		c.Consensus = &cc
	}
	return &c
}
