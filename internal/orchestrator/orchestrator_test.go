package orchestrator

import (
	"testing"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

func newOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(store.NewMemory(), opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func submit(t *testing.T, o *Orchestrator, desc string, caps []string, deps ...string) *models.Task {
	t.Helper()
	task, err := o.SubmitTask(graph.SubmitSpec{
		Description: desc, Priority: 5, EstimatedEffort: 5,
		RequiredCapabilities: caps, Dependencies: deps,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", desc, err)
	}
	return task
}

func TestEndToEndWorkflow(t *testing.T) {
	o := newOrchestrator(t)

	if _, err := o.RegisterAgent("builder", "builder", "worker", []string{"go"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := o.RegisterAgent("tester", "tester", "worker", []string{"go", "qa"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	build := submit(t, o, "build the binary", []string{"go"})
	test := submit(t, o, "run the suite", []string{"qa"}, build.ID)

	// Auto-assignment picks the build task for a capable idle agent; the
	// test task stays pending behind it.
	assignments, err := o.AssignTasks(0)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(assignments) != 1 || assignments[0].TaskID != build.ID {
		t.Fatalf("unexpected assignments: %+v", assignments)
	}
	builder := assignments[0].AgentID

	res, err := o.CompleteTask(build.ID, builder, true, "ok")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(res.Transitions) != 1 || res.Transitions[0].To != models.TaskStateReady {
		t.Fatalf("expected test task promoted, got %+v", res.Transitions)
	}

	// The test task needs qa, so only the tester qualifies.
	assignments, err = o.AssignTasks(0)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(assignments) != 1 || assignments[0].AgentID != "tester" {
		t.Fatalf("expected tester assigned, got %+v", assignments)
	}

	if _, err := o.CompleteTask(test.ID, "tester", true, "all green"); err != nil {
		t.Fatalf("complete test: %v", err)
	}

	stats, err := o.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Tasks[models.TaskStateCompleted] != 2 {
		t.Errorf("expected 2 completed tasks, got %+v", stats.Tasks)
	}
	if stats.Agents[models.AgentStatusIdle] != 2 {
		t.Errorf("expected both agents idle, got %+v", stats.Agents)
	}
}

func TestFailurePropagatesThroughGraph(t *testing.T) {
	o := newOrchestrator(t)
	if _, err := o.RegisterAgent("a1", "a1", "worker", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	a := submit(t, o, "a", nil)
	b := submit(t, o, "b", nil, a.ID)
	c := submit(t, o, "c", nil, b.ID)
	d := submit(t, o, "d", nil, c.ID)

	if _, err := o.ClaimTask(a.ID, "a1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	res, err := o.CompleteTask(a.ID, "a1", false, "broke")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(res.Transitions) != 3 {
		t.Fatalf("expected 3 blocked transitions, got %+v", res.Transitions)
	}

	for _, id := range []string{b.ID, c.ID, d.ID} {
		task, _ := o.GetTask(id)
		if task.State != models.TaskStateBlocked || task.BlockedBy != a.ID {
			t.Errorf("task %s: expected blocked by %s, got %+v", id, a.ID, task)
		}
		// Blocked is terminal.
		if _, err := o.ClaimTask(id, "a1"); !fault.Is(err, fault.CodeNotReady) {
			t.Errorf("claiming blocked task: expected not_ready, got %v", err)
		}
	}
}

func TestCollaborationAndConsensus(t *testing.T) {
	o := newOrchestrator(t)
	for _, id := range []string{"a1", "a2", "a3"} {
		if _, err := o.RegisterAgent(id, id, "worker", nil); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	task := submit(t, o, "pick a storage engine", nil)

	session, err := o.Collaborate(task.ID, []string{"a1", "a2", "a3"})
	if err != nil {
		t.Fatalf("collaborate: %v", err)
	}
	if _, err := o.SendMessage(session.ID, "a1", "I lean towards sqlite"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	consensus, err := o.BuildConsensus(session.ID, map[string]models.Position{
		"a1": {Conclusion: "approach-1", Confidence: 0.6},
		"a2": {Conclusion: "approach-1", Confidence: 0.8},
		"a3": {Conclusion: "approach-2", Confidence: 0.7},
	})
	if err != nil {
		t.Fatalf("build consensus: %v", err)
	}
	if consensus.Recommendation == "" || consensus.AgreementScore >= 0.7 {
		t.Errorf("expected below-threshold consensus, got %+v", consensus)
	}

	got, err := o.GetSession(session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Consensus == nil || len(got.Messages) != 1 {
		t.Errorf("session missing consensus or messages: %+v", got)
	}
}

func TestEventsEmitted(t *testing.T) {
	o := newOrchestrator(t, WithEventBuffer(64))

	if _, err := o.RegisterAgent("a1", "a1", "worker", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	task := submit(t, o, "work", nil)
	if _, err := o.ClaimTask(task.ID, "a1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := o.CompleteTask(task.ID, "a1", true, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	want := map[EventType]bool{
		EventAgentRegistered: false,
		EventTaskSubmitted:   false,
		EventTaskReady:       false,
		EventTaskClaimed:     false,
		EventTaskCompleted:   false,
	}
	for len(want) > 0 {
		select {
		case ev := <-o.Events():
			delete(want, ev.Type)
		default:
			t.Fatalf("missing events: %v", want)
		}
	}
}

func TestSubmitPlanEndToEnd(t *testing.T) {
	o := newOrchestrator(t)
	if _, err := o.RegisterAgent("a1", "a1", "worker", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	tasks, err := o.SubmitPlan([]graph.PlanTask{
		{LocalID: "setup", SubmitSpec: graph.SubmitSpec{Description: "setup", Priority: 5, EstimatedEffort: 3}},
		{LocalID: "work", SubmitSpec: graph.SubmitSpec{Description: "work", Priority: 5, EstimatedEffort: 5, Dependencies: []string{"setup"}}},
	})
	if err != nil {
		t.Fatalf("submit plan: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].State != models.TaskStateReady || tasks[1].State != models.TaskStatePending {
		t.Errorf("unexpected initial states: %s, %s", tasks[0].State, tasks[1].State)
	}

	// A plan with a cycle is rejected wholesale.
	if _, err := o.SubmitPlan([]graph.PlanTask{
		{LocalID: "x", SubmitSpec: graph.SubmitSpec{Description: "x", Priority: 5, EstimatedEffort: 5, Dependencies: []string{"y"}}},
		{LocalID: "y", SubmitSpec: graph.SubmitSpec{Description: "y", Priority: 5, EstimatedEffort: 5, Dependencies: []string{"x"}}},
	}); !fault.Is(err, fault.CodeCyclicDependency) {
		t.Errorf("expected cyclic_dependency, got %v", err)
	}
}

func TestStatsEmptyStore(t *testing.T) {
	o := newOrchestrator(t)
	stats, err := o.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats.Agents) != 0 || len(stats.Tasks) != 0 || stats.Sessions != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}
