// Package client provides a Go SDK for the quorum HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mkretch/quorum/pkg/models"
)

// Client calls the quorum HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:8080"
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

// APIError is a structured error returned by the server.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Status    int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error APIError `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error.Code != "" {
			errBody.Error.Status = resp.StatusCode
			return &errBody.Error
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health checks the server's /healthz endpoint.
func (c *Client) Health(ctx context.Context) (bool, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &out)
	return out.Status == "ok", err
}

// RegisterAgent registers or refreshes an agent.
func (c *Client) RegisterAgent(ctx context.Context, id, name, agentType string, capabilities []string) (*models.Agent, error) {
	var out models.Agent
	err := c.doJSON(ctx, http.MethodPost, "/v1/agents", map[string]any{
		"id": id, "name": name, "type": agentType, "capabilities": capabilities,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAgentStatus changes an agent's availability.
func (c *Client) UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus) (*models.Agent, error) {
	var out models.Agent
	err := c.doJSON(ctx, http.MethodPatch, "/v1/agents/"+url.PathEscape(id)+"/status", map[string]any{
		"status": status,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAgents returns all registered agents.
func (c *Client) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	var out struct {
		Agents []*models.Agent `json:"agents"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/agents", nil, &out)
	return out.Agents, err
}

// TaskSpec describes one task to submit.
type TaskSpec struct {
	Description          string   `json:"description"`
	Priority             int      `json:"priority,omitempty"`
	EstimatedEffort      int      `json:"estimated_effort,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	Dependencies         []string `json:"dependencies,omitempty"`
}

// PlanTask is one entry of a batch plan; its LocalID may be referenced by
// other entries' dependencies.
type PlanTask struct {
	LocalID string `json:"local_id"`
	TaskSpec
}

// SubmitTask adds one task to the graph.
func (c *Client) SubmitTask(ctx context.Context, spec TaskSpec) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/v1/tasks", spec, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitPlan adds a batch of interdependent tasks atomically.
func (c *Client) SubmitPlan(ctx context.Context, plan []PlanTask) ([]*models.Task, error) {
	var out struct {
		Tasks []*models.Task `json:"tasks"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/plans", map[string]any{"tasks": plan}, &out)
	return out.Tasks, err
}

// GetTask returns a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(id), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns tasks, optionally filtered by state and assignee.
func (c *Client) ListTasks(ctx context.Context, state, assignee string) ([]*models.Task, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if assignee != "" {
		q.Set("assignee", assignee)
	}
	path := "/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Tasks []*models.Task `json:"tasks"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Tasks, err
}

// ClaimTask atomically assigns a ready task to an agent.
func (c *Client) ClaimTask(ctx context.Context, taskID, agentID string) (*models.Task, error) {
	var out models.Task
	err := c.doJSON(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(taskID)+"/claim", map[string]any{
		"agent_id": agentID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteResult is the response of CompleteTask.
type CompleteResult struct {
	Task        *models.Task `json:"task"`
	Transitions []Transition `json:"transitions"`
}

// Transition records one downstream state change caused by a completion.
type Transition struct {
	TaskID string `json:"task_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// CompleteTask finalizes an in-progress task.
func (c *Client) CompleteTask(ctx context.Context, taskID, agentID string, success bool, result string) (*CompleteResult, error) {
	var out CompleteResult
	err := c.doJSON(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(taskID)+"/complete", map[string]any{
		"agent_id": agentID, "success": success, "result": result,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignTasks runs one auto-assignment pass on the server.
func (c *Client) AssignTasks(ctx context.Context, maxPerAgent int) ([]models.Assignment, error) {
	var out struct {
		Assignments []models.Assignment `json:"assignments"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/assignments", map[string]any{
		"max_per_agent": maxPerAgent,
	}, &out)
	return out.Assignments, err
}

// OpenSession starts a collaboration session on a task.
func (c *Client) OpenSession(ctx context.Context, taskID string, participants []string) (*models.Session, error) {
	var out models.Session
	err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", map[string]any{
		"task_id": taskID, "participants": participants,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PostMessage appends a message to a session.
func (c *Client) PostMessage(ctx context.Context, sessionID, from, content string) (*models.Message, error) {
	var out models.Message
	err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/messages", map[string]any{
		"from": from, "content": content,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BuildConsensus aggregates positions into a consensus on a session.
func (c *Client) BuildConsensus(ctx context.Context, sessionID string, positions map[string]models.Position) (*models.Consensus, error) {
	var out models.Consensus
	err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/consensus", map[string]any{
		"positions": positions,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats reports aggregate counts across the orchestrator.
type Stats struct {
	Agents        map[string]int `json:"agents"`
	Tasks         map[string]int `json:"tasks"`
	Sessions      int            `json:"sessions"`
	EventsDropped uint64         `json:"events_dropped"`
}

// GetStats fetches the orchestrator's aggregate counts.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var out Stats
	err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
