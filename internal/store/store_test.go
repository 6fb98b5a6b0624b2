package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mkretch/quorum/pkg/models"
)

// backends returns each StateStore implementation under test.
func backends(t *testing.T) map[string]StateStore {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]StateStore{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestAgentRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Millisecond)
			a := &models.Agent{
				ID:           "agent-1",
				Name:         "builder one",
				Type:         "builder",
				Capabilities: []string{"go", "sql"},
				Status:       models.AgentStatusIdle,
				RegisteredAt: now,
				LastSeen:     now,
			}
			if err := s.PutAgent(a); err != nil {
				t.Fatalf("put agent: %v", err)
			}

			got, err := s.GetAgent("agent-1")
			if err != nil {
				t.Fatalf("get agent: %v", err)
			}
			if got == nil {
				t.Fatal("expected agent, got nil")
			}
			if got.Name != a.Name || got.Type != a.Type || got.Status != a.Status {
				t.Errorf("round trip mismatch: got %+v", got)
			}
			if !models.CapabilitiesEqual(got.Capabilities, a.Capabilities) {
				t.Errorf("capabilities mismatch: got %v", got.Capabilities)
			}

			// Overwrite must update in place.
			a.Status = models.AgentStatusBusy
			if err := s.PutAgent(a); err != nil {
				t.Fatalf("put agent again: %v", err)
			}
			got, _ = s.GetAgent("agent-1")
			if got.Status != models.AgentStatusBusy {
				t.Errorf("expected busy after overwrite, got %s", got.Status)
			}

			missing, err := s.GetAgent("nope")
			if err != nil || missing != nil {
				t.Errorf("expected (nil, nil) for unknown agent, got (%v, %v)", missing, err)
			}
		})
	}
}

func TestTaskRoundTripAndFilters(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC()
			tasks := []*models.Task{
				{ID: "t1", Description: "one", Priority: 5, EstimatedEffort: 3,
					State: models.TaskStateReady, CreatedAt: now},
				{ID: "t2", Description: "two", Priority: 7, EstimatedEffort: 2,
					Dependencies: []string{"t1"}, RequiredCapabilities: []string{"go"},
					State: models.TaskStatePending, CreatedAt: now},
				{ID: "t3", Description: "three", Priority: 1, EstimatedEffort: 1,
					State: models.TaskStateInProgress, Assignee: "agent-1", CreatedAt: now},
			}
			for _, task := range tasks {
				if err := s.PutTask(task); err != nil {
					t.Fatalf("put task %s: %v", task.ID, err)
				}
			}

			got, err := s.GetTask("t2")
			if err != nil {
				t.Fatalf("get task: %v", err)
			}
			if len(got.Dependencies) != 1 || got.Dependencies[0] != "t1" {
				t.Errorf("dependencies mismatch: %v", got.Dependencies)
			}
			if len(got.RequiredCapabilities) != 1 || got.RequiredCapabilities[0] != "go" {
				t.Errorf("capabilities mismatch: %v", got.RequiredCapabilities)
			}

			all, err := s.ListTasks("", "")
			if err != nil {
				t.Fatalf("list tasks: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 tasks, got %d", len(all))
			}
			// Ordered by id.
			if all[0].ID != "t1" || all[2].ID != "t3" {
				t.Errorf("unexpected order: %s..%s", all[0].ID, all[2].ID)
			}

			ready, err := s.ListTasks(models.TaskStateReady, "")
			if err != nil {
				t.Fatalf("list ready: %v", err)
			}
			if len(ready) != 1 || ready[0].ID != "t1" {
				t.Errorf("state filter mismatch: %+v", ready)
			}

			mine, err := s.ListTasks("", "agent-1")
			if err != nil {
				t.Fatalf("list by assignee: %v", err)
			}
			if len(mine) != 1 || mine[0].ID != "t3" {
				t.Errorf("assignee filter mismatch: %+v", mine)
			}

			// Finalization fields survive a round trip.
			fin := now.Add(time.Minute)
			tasks[0].State = models.TaskStateCompleted
			tasks[0].Result = "ok"
			tasks[0].FinalizedAt = &fin
			if err := s.PutTask(tasks[0]); err != nil {
				t.Fatalf("put finalized: %v", err)
			}
			got, _ = s.GetTask("t1")
			if got.State != models.TaskStateCompleted || got.Result != "ok" || got.FinalizedAt == nil {
				t.Errorf("finalization mismatch: %+v", got)
			}
		})
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC()
			sess := &models.Session{
				ID:           "sess-1",
				TaskID:       "t1",
				Participants: []string{"a1", "a2"},
				Messages: []models.Message{
					{From: "a1", Content: "I think approach-1", Timestamp: now},
				},
				CreatedAt: now,
			}
			if err := s.PutSession(sess); err != nil {
				t.Fatalf("put session: %v", err)
			}

			got, err := s.GetSession("sess-1")
			if err != nil {
				t.Fatalf("get session: %v", err)
			}
			if got == nil || len(got.Participants) != 2 || len(got.Messages) != 1 {
				t.Fatalf("round trip mismatch: %+v", got)
			}
			if got.Consensus != nil {
				t.Error("expected nil consensus before build")
			}

			sess.Consensus = &models.Consensus{
				AgreedPoints:   []string{"approach-1"},
				Recommendation: "proceed",
				AgreementScore: 1.0,
				BuiltAt:        now,
			}
			if err := s.PutSession(sess); err != nil {
				t.Fatalf("put session with consensus: %v", err)
			}
			got, _ = s.GetSession("sess-1")
			if got.Consensus == nil || got.Consensus.AgreementScore != 1.0 {
				t.Errorf("consensus mismatch: %+v", got.Consensus)
			}

			sessions, err := s.ListSessions()
			if err != nil || len(sessions) != 1 {
				t.Errorf("list sessions: %v (%d)", err, len(sessions))
			}
		})
	}
}
