package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkretch/quorum/internal/orchestrator"
	"github.com/mkretch/quorum/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	orc, err := orchestrator.New(store.NewMemory())
	require.NoError(t, err)
	t.Cleanup(func() { orc.Close() })
	return NewServer(orc)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func registerAgent(t *testing.T, s *Server, id string, caps ...string) {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/v1/agents", map[string]any{
		"id": id, "name": id, "type": "worker", "capabilities": caps,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func submitTask(t *testing.T, s *Server, desc string, deps ...string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/v1/tasks", map[string]any{
		"description": desc, "dependencies": deps,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestAgentLifecycle(t *testing.T) {
	s := newTestServer(t)
	registerAgent(t, s, "a1", "go")

	w := doJSON(t, s, http.MethodGet, "/v1/agents/a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	agent := decode(t, w)
	assert.Equal(t, "idle", agent["status"])

	w = doJSON(t, s, http.MethodPatch, "/v1/agents/a1/status", map[string]any{"status": "offline"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "offline", decode(t, w)["status"])

	// Re-registering with different capabilities conflicts.
	w = doJSON(t, s, http.MethodPost, "/v1/agents", map[string]any{
		"id": "a1", "name": "a1", "type": "worker", "capabilities": []string{"rust"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "duplicate_conflict", body["code"])
}

func TestTaskSubmissionAndDependencies(t *testing.T) {
	s := newTestServer(t)

	a := submitTask(t, s, "first")
	w := doJSON(t, s, http.MethodGet, "/v1/tasks/"+a, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode(t, w)["state"])

	// Unknown dependency is a client error.
	w = doJSON(t, s, http.MethodPost, "/v1/tasks", map[string]any{
		"description": "second", "dependencies": []string{"ghost"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "invalid_dependency", body["code"])

	// Unknown task is 404.
	w = doJSON(t, s, http.MethodGet, "/v1/tasks/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlanCycleRejected(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/v1/plans", map[string]any{
		"tasks": []map[string]any{
			{"local_id": "x", "description": "x", "dependencies": []string{"y"}},
			{"local_id": "y", "description": "y", "dependencies": []string{"x"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "cyclic_dependency", body["code"])
}

func TestClaimAndComplete(t *testing.T) {
	s := newTestServer(t)
	registerAgent(t, s, "a1")
	a := submitTask(t, s, "upstream")
	b := submitTask(t, s, "downstream", a)

	w := doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%s/claim", a), map[string]any{"agent_id": "a1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "in_progress", decode(t, w)["state"])

	// A second claim conflicts and is retryable.
	registerAgent(t, s, "a2")
	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%s/claim", a), map[string]any{"agent_id": "a2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "already_claimed", body["code"])
	assert.Equal(t, true, body["retryable"])

	// Completing by a non-assignee is forbidden.
	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%s/complete", a), map[string]any{"agent_id": "a2", "success": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%s/complete", a), map[string]any{"agent_id": "a1", "success": true, "result": "done"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The dependent task got promoted.
	w = doJSON(t, s, http.MethodGet, "/v1/tasks/"+b, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode(t, w)["state"])
}

func TestAssignEndpoint(t *testing.T) {
	s := newTestServer(t)
	registerAgent(t, s, "a1", "go")
	id := submitTask(t, s, "needs nothing")

	w := doJSON(t, s, http.MethodPost, "/v1/assignments", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assignments := decode(t, w)["assignments"].([]any)
	require.Len(t, assignments, 1)
	first := assignments[0].(map[string]any)
	assert.Equal(t, id, first["task_id"])
	assert.Equal(t, "a1", first["agent_id"])
}

func TestCollaborationEndpoints(t *testing.T) {
	s := newTestServer(t)
	registerAgent(t, s, "a1")
	registerAgent(t, s, "a2")
	registerAgent(t, s, "a3")
	taskID := submitTask(t, s, "debate")

	w := doJSON(t, s, http.MethodPost, "/v1/sessions", map[string]any{
		"task_id": taskID, "participants": []string{"a1", "a2", "a3"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sessionID := decode(t, w)["id"].(string)

	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/messages", sessionID), map[string]any{
		"from": "a1", "content": "thoughts?",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Non-participants cannot post.
	registerAgent(t, s, "outsider")
	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/messages", sessionID), map[string]any{
		"from": "outsider", "content": "let me in",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/consensus", sessionID), map[string]any{
		"positions": map[string]any{
			"a1": map[string]any{"conclusion": "approach-1", "confidence": 0.6},
			"a2": map[string]any{"conclusion": "approach-1", "confidence": 0.8},
			"a3": map[string]any{"conclusion": "approach-2", "confidence": 0.7},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	consensus := decode(t, w)
	assert.InDelta(t, 1.0/3.0, consensus["agreement_score"], 1e-9)
	assert.Contains(t, consensus["agreed_points"], "approach-1")
	assert.Contains(t, consensus["disagreed_points"], "approach-2")
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	registerAgent(t, s, "a1")
	submitTask(t, s, "one")

	w := doJSON(t, s, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	tasks := stats["tasks"].(map[string]any)
	assert.Equal(t, float64(1), tasks["ready"])
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	// Missing required field.
	w := doJSON(t, s, http.MethodPost, "/v1/tasks", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Out-of-range priority.
	w = doJSON(t, s, http.MethodPost, "/v1/tasks", map[string]any{"description": "x", "priority": 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "invalid_argument", body["code"])

	// Bad state filter.
	w = doJSON(t, s, http.MethodGet, "/v1/tasks?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
