package collab

import (
	"fmt"
	"testing"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/internal/locks"
	"github.com/mkretch/quorum/internal/registry"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

type fixture struct {
	store  *store.Memory
	graph  *graph.Graph
	agents *registry.Registry
	coord  *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	g, err := graph.New(mem, locks.NewTable())
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	agents := registry.New(mem, 0)
	coord := NewCoordinator(mem, mem, agents)
	n := 0
	coord.SetIDFunc(func() string { n++; return fmt.Sprintf("session-%03d", n) })
	return &fixture{store: mem, graph: g, agents: agents, coord: coord}
}

func (f *fixture) setup(t *testing.T, agentIDs ...string) *models.Task {
	t.Helper()
	for _, id := range agentIDs {
		if _, err := f.agents.Register(id, id, "worker", nil); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	task, err := f.graph.Submit(graph.SubmitSpec{Description: "design review", Priority: 5, EstimatedEffort: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return task
}

func TestOpenSession(t *testing.T) {
	f := newFixture(t)
	task := f.setup(t, "a1", "a2")

	s, err := f.coord.Open(task.ID, []string{"a1", "a2"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.TaskID != task.ID || len(s.Participants) != 2 || len(s.Messages) != 0 {
		t.Errorf("unexpected session: %+v", s)
	}

	got, err := f.coord.Get(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("get returned wrong session: %+v", got)
	}
}

func TestOpenSessionErrors(t *testing.T) {
	f := newFixture(t)
	task := f.setup(t, "a1")

	if _, err := f.coord.Open("ghost", []string{"a1"}); !fault.Is(err, fault.CodeNotFound) {
		t.Errorf("unknown task: expected not_found, got %v", err)
	}
	if _, err := f.coord.Open(task.ID, []string{"a1", "ghost"}); !fault.Is(err, fault.CodeNotFound) {
		t.Errorf("unknown participant: expected not_found, got %v", err)
	}
	if _, err := f.coord.Open(task.ID, nil); !fault.Is(err, fault.CodeInvalidArgument) {
		t.Errorf("no participants: expected invalid_argument, got %v", err)
	}
}

func TestPostMessageArrivalOrder(t *testing.T) {
	f := newFixture(t)
	task := f.setup(t, "a1", "a2")
	s, err := f.coord.Open(task.ID, []string{"a1", "a2"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i, m := range []struct{ from, content string }{
		{"a1", "first"},
		{"a2", "second"},
		{"a1", "third"},
	} {
		if _, err := f.coord.PostMessage(s.ID, m.from, m.content); err != nil {
			t.Fatalf("post message %d: %v", i, err)
		}
	}

	got, _ := f.coord.Get(s.ID)
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	want := []string{"first", "second", "third"}
	for i, msg := range got.Messages {
		if msg.Content != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], msg.Content)
		}
	}
}

func TestPostMessageErrors(t *testing.T) {
	f := newFixture(t)
	task := f.setup(t, "a1", "outsider")
	s, err := f.coord.Open(task.ID, []string{"a1"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := f.coord.PostMessage(s.ID, "outsider", "hello"); !fault.Is(err, fault.CodeForbidden) {
		t.Errorf("non-participant: expected forbidden, got %v", err)
	}
	if _, err := f.coord.PostMessage("ghost", "a1", "hello"); !fault.Is(err, fault.CodeNotFound) {
		t.Errorf("unknown session: expected not_found, got %v", err)
	}

	got, _ := f.coord.Get(s.ID)
	if len(got.Messages) != 0 {
		t.Errorf("rejected messages must not be stored, got %d", len(got.Messages))
	}
}
