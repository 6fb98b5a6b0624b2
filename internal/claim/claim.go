// Package claim enforces the task state machine's claim and completion
// transitions. Claims are linearizable: when agents race on one ready task,
// exactly one caller wins and the rest get already_claimed.
package claim

import (
	"time"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/internal/locks"
	"github.com/mkretch/quorum/internal/registry"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

// DefaultLockTimeout bounds how long a claim waits on a task lock before
// returning busy instead of starving the caller.
const DefaultLockTimeout = 2 * time.Second

// Manager performs atomic claim and complete transitions.
type Manager struct {
	tasks  store.TaskStore
	graph  *graph.Graph
	agents *registry.Registry
	locks  *locks.Table
	// lockTimeout bounds lock acquisition for claims and completions.
	lockTimeout time.Duration
	// now is injectable for tests.
	now func() time.Time
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewManager creates a claim manager sharing the graph's lock table.
func NewManager(tasks store.TaskStore, g *graph.Graph, agents *registry.Registry, lt *locks.Table, lockTimeout time.Duration) *Manager {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Manager{
		tasks:       tasks,
		graph:       g,
		agents:      agents,
		locks:       lt,
		lockTimeout: lockTimeout,
		now:         time.Now,
		debugLog:    func(format string, args ...interface{}) {},
	}
}

// SetClock overrides the manager's time source (for tests).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetDebugLog sets the debug logging function.
func (m *Manager) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		m.debugLog = fn
	}
}

// Claim transitions a ready task to in_progress with the agent as assignee.
// Exactly one concurrent claimant succeeds; losers get already_claimed. The
// winning agent is marked busy even when the claim bypasses the scheduler.
func (m *Manager) Claim(taskID, agentID string) (*models.Task, error) {
	if _, err := m.agents.Get(agentID); err != nil {
		return nil, err
	}

	release, err := m.locks.Acquire(taskID, m.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := m.tasks.GetTask(taskID)
	if err != nil {
		return nil, fault.Internal(err, "get task %s", taskID)
	}
	if t == nil {
		return nil, fault.New(fault.CodeNotFound, "task %s does not exist", taskID)
	}

	switch t.State {
	case models.TaskStateReady:
		// Fall through to claim.
	case models.TaskStateInProgress:
		return nil, fault.New(fault.CodeAlreadyClaimed, "task %s already claimed by %s", taskID, t.Assignee)
	default:
		return nil, fault.New(fault.CodeNotReady, "task %s is %s, not ready", taskID, t.State)
	}

	t.State = models.TaskStateInProgress
	t.Assignee = agentID
	if err := m.tasks.PutTask(t); err != nil {
		return nil, fault.Internal(err, "put task %s", taskID)
	}

	// The claim is committed once the task row is written. Agent status is
	// advisory bookkeeping; a failed write there must not surface an error
	// for a claim that already happened.
	if _, err := m.agents.UpdateStatus(agentID, models.AgentStatusBusy); err != nil {
		m.debugLog("[claim] agent %s status update failed after claiming %s: %v", agentID, taskID, err)
	}
	return t, nil
}

// Result carries a finalized task plus the cascade it triggered.
type Result struct {
	Task        *models.Task
	Transitions []graph.Transition
}

// Complete finalizes an in-progress task as completed or failed, propagates
// readiness to dependents, and returns the claiming agent to idle once it
// holds no other in-progress work.
func (m *Manager) Complete(taskID, agentID string, success bool, result string) (*Result, error) {
	release, err := m.locks.Acquire(taskID, m.lockTimeout)
	if err != nil {
		return nil, err
	}

	t, err := m.tasks.GetTask(taskID)
	if err != nil {
		release()
		return nil, fault.Internal(err, "get task %s", taskID)
	}
	if t == nil {
		release()
		return nil, fault.New(fault.CodeNotFound, "task %s does not exist", taskID)
	}
	if t.State != models.TaskStateInProgress {
		release()
		return nil, fault.New(fault.CodeInvalidState, "task %s is %s, not in_progress", taskID, t.State)
	}
	if t.Assignee != agentID {
		release()
		return nil, fault.New(fault.CodeNotAssignee, "task %s is assigned to %s, not %s", taskID, t.Assignee, agentID)
	}

	outcome := models.TaskStateCompleted
	if !success {
		outcome = models.TaskStateFailed
	}
	now := m.now()
	t.State = outcome
	t.Result = result
	t.FinalizedAt = &now
	if err := m.tasks.PutTask(t); err != nil {
		release()
		return nil, fault.Internal(err, "put task %s", taskID)
	}

	// The task is terminal; release its lock before the cascade locks
	// dependents so deep chains never hold two locks at once.
	release()

	transitions, err := m.graph.OnTaskFinalized(taskID, outcome)
	if err != nil {
		return nil, err
	}

	// Finalization is committed; failing to idle the agent is logged, not
	// surfaced.
	if err := m.releaseAgent(agentID); err != nil {
		m.debugLog("[claim] agent %s release failed after finalizing %s: %v", agentID, taskID, err)
	}
	return &Result{Task: t, Transitions: transitions}, nil
}

// releaseAgent sets an agent back to idle unless it still holds other
// in-progress tasks.
func (m *Manager) releaseAgent(agentID string) error {
	remaining, err := m.graph.CountAssigned(agentID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	_, err = m.agents.UpdateStatus(agentID, models.AgentStatusIdle)
	return err
}
