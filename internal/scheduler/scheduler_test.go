package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/mkretch/quorum/internal/claim"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/internal/locks"
	"github.com/mkretch/quorum/internal/registry"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

type fixture struct {
	graph  *graph.Graph
	agents *registry.Registry
	claims *claim.Manager
	sched  *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	lt := locks.NewTable()
	g, err := graph.New(mem, lt)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	n := 0
	g.SetIDFunc(func() string { n++; return fmt.Sprintf("task-%03d", n) })

	agents := registry.New(mem, 0)
	claims := claim.NewManager(mem, g, agents, lt, time.Second)
	return &fixture{
		graph:  g,
		agents: agents,
		claims: claims,
		sched:  New(g, agents, claims, DefaultMaxTasksPerAgent),
	}
}

func (f *fixture) submit(t *testing.T, desc string, priority int, caps []string, deps ...string) *models.Task {
	t.Helper()
	task, err := f.graph.Submit(graph.SubmitSpec{
		Description: desc, Priority: priority, EstimatedEffort: 5,
		RequiredCapabilities: caps, Dependencies: deps,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", desc, err)
	}
	return task
}

func (f *fixture) register(t *testing.T, id string, caps ...string) {
	t.Helper()
	if _, err := f.agents.Register(id, id, "worker", caps); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func TestAutoAssignMatchesCapableAgent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", "go")
	task := f.submit(t, "needs go", 5, []string{"go"})

	assignments, err := f.sched.AutoAssign(0)
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(assignments) != 1 || assignments[0].TaskID != task.ID || assignments[0].AgentID != "a1" {
		t.Fatalf("unexpected assignments: %+v", assignments)
	}

	got, _ := f.graph.Get(task.ID)
	if got.State != models.TaskStateInProgress || got.Assignee != "a1" {
		t.Errorf("task not claimed by scheduler: %+v", got)
	}
}

func TestAutoAssignNeverViolatesCapabilitySuperset(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", "go")
	f.submit(t, "needs rust", 5, []string{"rust"})

	assignments, err := f.sched.AutoAssign(0)
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("task assigned to incapable agent: %+v", assignments)
	}

	// Agent with a superset is acceptable.
	f.register(t, "a2", "rust", "go", "sql")
	assignments, _ = f.sched.AutoAssign(0)
	if len(assignments) != 1 || assignments[0].AgentID != "a2" {
		t.Fatalf("superset agent not used: %+v", assignments)
	}
}

func TestAutoAssignPriorityOrder(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1")

	low := f.submit(t, "low", 2, nil)
	high := f.submit(t, "high", 9, nil)

	// Only one agent, so only the highest-priority task is assigned.
	assignments, err := f.sched.AutoAssign(1)
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(assignments) != 1 || assignments[0].TaskID != high.ID {
		t.Fatalf("expected high-priority task first, got %+v", assignments)
	}

	got, _ := f.graph.Get(low.ID)
	if got.State != models.TaskStateReady {
		t.Errorf("low-priority task should remain ready, got %s", got.State)
	}
}

func TestAutoAssignTieBreakByID(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1")

	first := f.submit(t, "same priority 1", 5, nil)
	f.submit(t, "same priority 2", 5, nil)

	assignments, _ := f.sched.AutoAssign(1)
	if len(assignments) != 1 || assignments[0].TaskID != first.ID {
		t.Fatalf("expected ascending id tie-break, got %+v", assignments)
	}
}

func TestAutoAssignSkipsPendingTasks(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", "x")

	a := f.submit(t, "a", 5, nil)
	b := f.submit(t, "b needs x", 5, []string{"x"}, a.ID)

	// B is pending behind A; the scheduler must not touch it.
	assignments, _ := f.sched.AutoAssign(0)
	for _, as := range assignments {
		if as.TaskID == b.ID {
			t.Fatalf("pending task assigned: %+v", as)
		}
	}

	// Claim and complete A, then B becomes assignable.
	if _, err := f.claims.Complete(a.ID, assignments[0].AgentID, true, ""); err != nil {
		t.Fatalf("complete a: %v", err)
	}
	assignments, _ = f.sched.AutoAssign(0)
	if len(assignments) != 1 || assignments[0].TaskID != b.ID {
		t.Fatalf("expected b assigned after a completed, got %+v", assignments)
	}
}

func TestAutoAssignRespectsPerAgentLimit(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1")

	f.submit(t, "t1", 5, nil)
	f.submit(t, "t2", 5, nil)
	f.submit(t, "t3", 5, nil)

	// The agent goes busy after its first claim, so a single pass assigns
	// one task; the rest stay ready.
	assignments, err := f.sched.AutoAssign(2)
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(assignments))
	}

	ready, _ := f.graph.List(models.TaskStateReady, "")
	if len(ready) != 2 {
		t.Errorf("expected 2 tasks still ready, got %d", len(ready))
	}
}

func TestAutoAssignNoIdleAgents(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1")
	if _, err := f.agents.UpdateStatus("a1", models.AgentStatusOffline); err != nil {
		t.Fatalf("update status: %v", err)
	}
	f.submit(t, "t1", 5, nil)

	assignments, err := f.sched.AutoAssign(0)
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if len(assignments) != 0 {
		t.Errorf("offline agent received work: %+v", assignments)
	}
}
