// Package scheduler matches ready tasks to available, capable agents.
// Assignment is advisory: it rides the same atomic claim path that agents
// use directly, so a scheduler-made assignment and an explicit claim are
// indistinguishable to the state machine.
package scheduler

import (
	"sort"
	"sync"

	"github.com/mkretch/quorum/internal/claim"
	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/internal/registry"
	"github.com/mkretch/quorum/pkg/models"
)

// DefaultMaxTasksPerAgent bounds how many in-progress tasks one agent may
// hold at a time through auto-assignment.
const DefaultMaxTasksPerAgent = 3

// Scheduler proposes assignments of ready tasks to idle, capable agents.
type Scheduler struct {
	graph    *graph.Graph
	agents   *registry.Registry
	claims   *claim.Manager
	debugLog func(format string, args ...interface{})

	mu     sync.Mutex
	maxPer int
}

// New creates a Scheduler.
func New(g *graph.Graph, agents *registry.Registry, claims *claim.Manager, maxTasksPerAgent int) *Scheduler {
	if maxTasksPerAgent <= 0 {
		maxTasksPerAgent = DefaultMaxTasksPerAgent
	}
	return &Scheduler{
		graph:    g,
		agents:   agents,
		claims:   claims,
		maxPer:   maxTasksPerAgent,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (s *Scheduler) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
	}
}

// SetMaxTasksPerAgent updates the per-agent limit at runtime. Values <= 0
// are ignored.
func (s *Scheduler) SetMaxTasksPerAgent(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.maxPer = n
	s.mu.Unlock()
}

// AutoAssign scans ready tasks in descending priority (ascending id breaks
// ties) and claims each for the first idle agent whose capability set covers
// the task and who holds fewer than the per-agent limit. Tasks with no
// eligible agent stay ready for the next invocation. maxPerAgent <= 0 uses
// the scheduler's configured limit.
func (s *Scheduler) AutoAssign(maxPerAgent int) ([]models.Assignment, error) {
	if maxPerAgent <= 0 {
		s.mu.Lock()
		maxPerAgent = s.maxPer
		s.mu.Unlock()
	}

	ready, err := s.graph.List(models.TaskStateReady, "")
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return nil, nil
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].ID < ready[j].ID
	})

	var assignments []models.Assignment
	for _, task := range ready {
		candidates, err := s.agents.FindCapable(task.RequiredCapabilities, models.AgentStatusIdle)
		if err != nil {
			return assignments, err
		}
		if len(candidates) == 0 {
			s.debugLog("[scheduler] task %s: no idle capable agent", task.ID)
			continue
		}

		for _, agent := range candidates {
			held, err := s.graph.CountAssigned(agent.ID)
			if err != nil {
				return assignments, err
			}
			if held >= maxPerAgent {
				s.debugLog("[scheduler] agent %s at limit (%d/%d)", agent.ID, held, maxPerAgent)
				continue
			}

			_, err = s.claims.Claim(task.ID, agent.ID)
			if err == nil {
				s.debugLog("[scheduler] assigned task %s to agent %s", task.ID, agent.ID)
				assignments = append(assignments, models.Assignment{TaskID: task.ID, AgentID: agent.ID})
				break
			}
			if fault.Retryable(err) {
				// Lost a race with a direct claimant; the task is no
				// longer ours to place.
				s.debugLog("[scheduler] task %s: claim lost (%v)", task.ID, err)
				break
			}
			return assignments, err
		}
	}
	return assignments, nil
}
