// Package graph owns task records and their dependency edges. It validates
// submissions against the acyclicity invariant, computes readiness, and
// propagates completion and failure through dependents. It is the sole
// writer of task state and assignee.
package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/locks"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

// SubmitSpec describes one task submission.
type SubmitSpec struct {
	Description          string
	Priority             int
	EstimatedEffort      int
	RequiredCapabilities []string
	Dependencies         []string
}

// PlanTask is one entry of a batch submission. LocalID lets plan entries
// depend on each other before real IDs exist.
type PlanTask struct {
	LocalID string
	SubmitSpec
}

// Transition records one state change made by a cascade.
type Transition struct {
	TaskID string
	From   models.TaskState
	To     models.TaskState
}

// Graph holds tasks and their dependency edges over an injected store.
type Graph struct {
	store store.TaskStore
	locks *locks.Table

	// mu protects the edge indexes below. Task records themselves are
	// guarded by the per-task lock table.
	mu sync.RWMutex
	// deps maps task ID to the IDs it depends on.
	deps map[string][]string
	// dependents maps task ID to the IDs that depend on it.
	dependents map[string][]string

	// newID generates task IDs; injectable for tests.
	newID func() string
	// now is injectable for tests.
	now func() time.Time
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a Graph backed by the given store, rebuilding the dependency
// indexes from any tasks already persisted.
func New(s store.TaskStore, lt *locks.Table) (*Graph, error) {
	g := &Graph{
		store:      s,
		locks:      lt,
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		newID:      uuid.NewString,
		now:        time.Now,
		debugLog:   func(format string, args ...interface{}) {},
	}

	tasks, err := s.ListTasks("", "")
	if err != nil {
		return nil, fault.Internal(err, "load tasks")
	}
	for _, t := range tasks {
		g.indexLocked(t.ID, t.Dependencies)
	}
	return g, nil
}

// SetDebugLog sets the debug logging function.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// SetIDFunc overrides the task ID generator (for tests).
func (g *Graph) SetIDFunc(fn func() string) {
	g.newID = fn
}

// SetClock overrides the graph's time source (for tests).
func (g *Graph) SetClock(now func() time.Time) {
	g.now = now
}

// indexLocked records edges for a task. Caller must hold g.mu or be inside
// construction before the graph is shared.
func (g *Graph) indexLocked(id string, deps []string) {
	g.deps[id] = append([]string(nil), deps...)
	for _, d := range deps {
		g.dependents[d] = append(g.dependents[d], id)
	}
}

// validateSpec normalizes and checks the scalar fields of a submission.
func validateSpec(spec *SubmitSpec) error {
	if spec.Description == "" {
		return fault.New(fault.CodeInvalidArgument, "task description must not be empty")
	}
	if spec.Priority < 1 || spec.Priority > 10 {
		return fault.New(fault.CodeInvalidArgument, "priority %d out of range 1-10", spec.Priority)
	}
	if spec.EstimatedEffort < 1 || spec.EstimatedEffort > 10 {
		return fault.New(fault.CodeInvalidArgument, "estimated effort %d out of range 1-10", spec.EstimatedEffort)
	}
	caps, ok := models.NormalizeCapabilities(spec.RequiredCapabilities)
	if !ok {
		return fault.New(fault.CodeInvalidArgument, "required capabilities must be non-empty strings")
	}
	spec.RequiredCapabilities = caps
	return nil
}

// dedupe removes duplicate dependency IDs preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Submit validates and stores a single task. Tasks whose dependencies are
// already satisfied start ready; a dependency that already failed or was
// blocked makes the new task blocked immediately.
func (g *Graph) Submit(spec SubmitSpec) (*models.Task, error) {
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}
	deps := dedupe(spec.Dependencies)

	// Dependency states are resolved under g.mu, like SubmitPlan does. A
	// dependency finalizing concurrently either commits its store write
	// before this read, or finds the new task in the dependents index when
	// its cascade runs; resolving outside the lock could miss both and
	// strand the task in pending.
	g.mu.Lock()
	defer g.mu.Unlock()

	initial := models.TaskStateReady
	blockedBy := ""
	for _, depID := range deps {
		dep, err := g.store.GetTask(depID)
		if err != nil {
			return nil, fault.Internal(err, "get dependency %s", depID)
		}
		if dep == nil {
			return nil, fault.New(fault.CodeInvalidDependency, "dependency %s does not exist", depID)
		}
		switch dep.State {
		case models.TaskStateFailed, models.TaskStateBlocked:
			if blockedBy == "" {
				blockedBy = depID
			}
			initial = models.TaskStateBlocked
		case models.TaskStateCompleted:
			// Satisfied; no effect on readiness.
		default:
			if initial != models.TaskStateBlocked {
				initial = models.TaskStatePending
			}
		}
	}
	if initial != models.TaskStateBlocked {
		blockedBy = ""
	}

	id := g.newID()
	if g.wouldCycleLocked(map[string][]string{id: deps}) {
		return nil, fault.New(fault.CodeCyclicDependency, "task %s would create a dependency cycle", id)
	}

	t := &models.Task{
		ID:                   id,
		Description:          spec.Description,
		Priority:             spec.Priority,
		EstimatedEffort:      spec.EstimatedEffort,
		RequiredCapabilities: spec.RequiredCapabilities,
		Dependencies:         deps,
		State:                initial,
		BlockedBy:            blockedBy,
		CreatedAt:            g.now(),
	}
	if err := g.store.PutTask(t); err != nil {
		return nil, fault.Internal(err, "put task %s", id)
	}
	g.indexLocked(id, deps)

	g.debugLog("[graph.Submit] task %s submitted state=%s deps=%v", id, initial, deps)
	return t, nil
}

// SubmitPlan validates and stores a batch of tasks as a unit. Entries may
// depend on each other through LocalID or on existing task IDs. Nothing is
// stored unless the whole plan validates.
func (g *Graph) SubmitPlan(plan []PlanTask) ([]*models.Task, error) {
	if len(plan) == 0 {
		return nil, fault.New(fault.CodeInvalidArgument, "plan must contain at least one task")
	}

	local := make(map[string]string, len(plan)) // LocalID -> generated ID
	for i := range plan {
		if err := validateSpec(&plan[i].SubmitSpec); err != nil {
			return nil, err
		}
		if plan[i].LocalID == "" {
			return nil, fault.New(fault.CodeInvalidArgument, "plan entry %d: local id must not be empty", i)
		}
		if _, dup := local[plan[i].LocalID]; dup {
			return nil, fault.New(fault.CodeInvalidArgument, "duplicate local id %q", plan[i].LocalID)
		}
		local[plan[i].LocalID] = g.newID()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Resolve dependencies: local references first, then existing tasks.
	added := make(map[string][]string, len(plan))
	tasks := make([]*models.Task, 0, len(plan))
	now := g.now()
	for i := range plan {
		entry := &plan[i]
		id := local[entry.LocalID]

		resolved := make([]string, 0, len(entry.Dependencies))
		initial := models.TaskStateReady
		blockedBy := ""
		for _, depRef := range dedupe(entry.Dependencies) {
			if depID, ok := local[depRef]; ok {
				if depID == id {
					return nil, fault.New(fault.CodeCyclicDependency,
						"plan task %q depends on itself", entry.LocalID)
				}
				resolved = append(resolved, depID)
				if initial != models.TaskStateBlocked {
					initial = models.TaskStatePending
				}
				continue
			}
			dep, err := g.store.GetTask(depRef)
			if err != nil {
				return nil, fault.Internal(err, "get dependency %s", depRef)
			}
			if dep == nil {
				return nil, fault.New(fault.CodeInvalidDependency,
					"plan task %q: dependency %s does not exist", entry.LocalID, depRef)
			}
			resolved = append(resolved, dep.ID)
			switch dep.State {
			case models.TaskStateFailed, models.TaskStateBlocked:
				if blockedBy == "" {
					blockedBy = dep.ID
				}
				initial = models.TaskStateBlocked
			case models.TaskStateCompleted:
			default:
				if initial != models.TaskStateBlocked {
					initial = models.TaskStatePending
				}
			}
		}
		if initial != models.TaskStateBlocked {
			blockedBy = ""
		}

		added[id] = resolved
		tasks = append(tasks, &models.Task{
			ID:                   id,
			Description:          entry.Description,
			Priority:             entry.Priority,
			EstimatedEffort:      entry.EstimatedEffort,
			RequiredCapabilities: entry.RequiredCapabilities,
			Dependencies:         resolved,
			State:                initial,
			BlockedBy:            blockedBy,
			CreatedAt:            now,
		})
	}

	if g.wouldCycleLocked(added) {
		return nil, fault.New(fault.CodeCyclicDependency, "plan contains a dependency cycle")
	}

	for _, t := range tasks {
		if err := g.store.PutTask(t); err != nil {
			return nil, fault.Internal(err, "put task %s", t.ID)
		}
		g.indexLocked(t.ID, t.Dependencies)
	}

	g.debugLog("[graph.SubmitPlan] stored %d tasks", len(tasks))
	return tasks, nil
}

// wouldCycleLocked reports whether the existing edges plus the added edges
// contain a cycle. Uses depth-first search with coloring to detect back
// edges. Caller must hold g.mu.
func (g *Graph) wouldCycleLocked(added map[string][]string) bool {
	edges := func(id string) []string {
		if deps, ok := added[id]; ok {
			return deps
		}
		return g.deps[id]
	}

	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range edges(id) {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range added {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// Get returns the task or a not-found fault.
func (g *Graph) Get(id string) (*models.Task, error) {
	t, err := g.store.GetTask(id)
	if err != nil {
		return nil, fault.Internal(err, "get task %s", id)
	}
	if t == nil {
		return nil, fault.New(fault.CodeNotFound, "task %s does not exist", id)
	}
	return t, nil
}

// List returns tasks filtered by state and/or assignee (empty = no filter).
func (g *Graph) List(state models.TaskState, assignee string) ([]*models.Task, error) {
	if state != "" && !state.Valid() {
		return nil, fault.New(fault.CodeInvalidArgument, "unknown task state %q", state)
	}
	tasks, err := g.store.ListTasks(state, assignee)
	if err != nil {
		return nil, fault.Internal(err, "list tasks")
	}
	return tasks, nil
}

// CountAssigned returns the number of in-progress tasks held by an agent.
// All non-terminal assigned tasks count toward scheduler limits.
func (g *Graph) CountAssigned(agentID string) (int, error) {
	tasks, err := g.store.ListTasks(models.TaskStateInProgress, agentID)
	if err != nil {
		return 0, fault.Internal(err, "count assigned tasks for %s", agentID)
	}
	return len(tasks), nil
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[id]...)
}

// OnTaskFinalized recomputes dependent states after a task reaches a
// terminal outcome. A completed task may make dependents ready; a failed
// task blocks all transitive descendants (fail-fast propagation). Each
// affected task is locked individually as it is visited; no graph-wide lock
// is held across the cascade.
func (g *Graph) OnTaskFinalized(taskID string, outcome models.TaskState) ([]Transition, error) {
	switch outcome {
	case models.TaskStateCompleted:
		return g.promoteDependents(taskID)
	case models.TaskStateFailed:
		return g.blockDescendants(taskID)
	default:
		return nil, fault.New(fault.CodeInvalidState, "outcome %q is not terminal", outcome)
	}
}

// promoteDependents moves pending dependents to ready once every one of
// their dependencies has completed.
func (g *Graph) promoteDependents(taskID string) ([]Transition, error) {
	var transitions []Transition
	for _, depID := range g.Dependents(taskID) {
		release, err := g.locks.Acquire(depID, 0)
		if err != nil {
			return transitions, err
		}

		t, err := g.store.GetTask(depID)
		if err != nil {
			release()
			return transitions, fault.Internal(err, "get dependent %s", depID)
		}
		if t == nil || t.State != models.TaskStatePending {
			release()
			continue
		}

		satisfied, err := g.allDepsCompleted(t)
		if err != nil {
			release()
			return transitions, err
		}
		if satisfied {
			t.State = models.TaskStateReady
			if err := g.store.PutTask(t); err != nil {
				release()
				return transitions, fault.Internal(err, "put dependent %s", depID)
			}
			transitions = append(transitions, Transition{
				TaskID: depID,
				From:   models.TaskStatePending,
				To:     models.TaskStateReady,
			})
			g.debugLog("[graph.cascade] task %s is ready (all deps completed)", depID)
		}
		release()
	}
	return transitions, nil
}

// blockDescendants marks every non-terminal transitive descendant of a
// failed (or blocked) task as blocked. Breadth-first so each task is locked
// once and nothing is held while visiting the next.
func (g *Graph) blockDescendants(taskID string) ([]Transition, error) {
	var transitions []Transition
	visited := map[string]bool{taskID: true}
	queue := g.Dependents(taskID)

	for len(queue) > 0 {
		depID := queue[0]
		queue = queue[1:]
		if visited[depID] {
			continue
		}
		visited[depID] = true

		release, err := g.locks.Acquire(depID, 0)
		if err != nil {
			return transitions, err
		}

		t, err := g.store.GetTask(depID)
		if err != nil {
			release()
			return transitions, fault.Internal(err, "get dependent %s", depID)
		}
		if t == nil || t.State.Terminal() || t.State == models.TaskStateInProgress {
			release()
			continue
		}

		from := t.State
		t.State = models.TaskStateBlocked
		t.BlockedBy = taskID
		if err := g.store.PutTask(t); err != nil {
			release()
			return transitions, fault.Internal(err, "put dependent %s", depID)
		}
		release()

		transitions = append(transitions, Transition{TaskID: depID, From: from, To: models.TaskStateBlocked})
		g.debugLog("[graph.cascade] task %s blocked by failed task %s", depID, taskID)
		queue = append(queue, g.Dependents(depID)...)
	}
	return transitions, nil
}

// allDepsCompleted reports whether every dependency of the task completed.
func (g *Graph) allDepsCompleted(t *models.Task) (bool, error) {
	for _, depID := range t.Dependencies {
		dep, err := g.store.GetTask(depID)
		if err != nil {
			return false, fault.Internal(err, "get dependency %s", depID)
		}
		if dep == nil || dep.State != models.TaskStateCompleted {
			return false, nil
		}
	}
	return true, nil
}
