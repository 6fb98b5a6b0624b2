package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/pkg/models"
)

type registerAgentRequest struct {
	ID           string   `json:"id" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Type         string   `json:"type" binding:"required"`
	Capabilities []string `json:"capabilities"`
}

func (s *Server) registerAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	agent, err := s.orc.RegisterAgent(req.ID, req.Name, req.Type, req.Capabilities)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.orc.ListAgents()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (s *Server) getAgent(c *gin.Context) {
	agent, err := s.orc.GetAgent(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

type updateStatusRequest struct {
	Status models.AgentStatus `json:"status" binding:"required"`
}

func (s *Server) updateAgentStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	agent, err := s.orc.UpdateAgentStatus(c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

type submitTaskRequest struct {
	Description          string   `json:"description" binding:"required"`
	Priority             int      `json:"priority"`
	EstimatedEffort      int      `json:"estimated_effort"`
	RequiredCapabilities []string `json:"required_capabilities"`
	Dependencies         []string `json:"dependencies"`
}

func (r submitTaskRequest) toSpec() graph.SubmitSpec {
	// Unset priority and effort default to the midpoint of the 1..10 scale.
	if r.Priority == 0 {
		r.Priority = 5
	}
	if r.EstimatedEffort == 0 {
		r.EstimatedEffort = 5
	}
	return graph.SubmitSpec{
		Description:          r.Description,
		Priority:             r.Priority,
		EstimatedEffort:      r.EstimatedEffort,
		RequiredCapabilities: r.RequiredCapabilities,
		Dependencies:         r.Dependencies,
	}
}

func (s *Server) submitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	task, err := s.orc.SubmitTask(req.toSpec())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

type planTaskRequest struct {
	LocalID string `json:"local_id" binding:"required"`
	submitTaskRequest
}

type submitPlanRequest struct {
	Tasks []planTaskRequest `json:"tasks" binding:"required"`
}

func (s *Server) submitPlan(c *gin.Context) {
	var req submitPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	plan := make([]graph.PlanTask, len(req.Tasks))
	for i, pt := range req.Tasks {
		plan[i] = graph.PlanTask{LocalID: pt.LocalID, SubmitSpec: pt.toSpec()}
	}
	tasks, err := s.orc.SubmitPlan(plan)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tasks": tasks})
}

func (s *Server) listTasks(c *gin.Context) {
	state := models.TaskState(c.Query("state"))
	if state != "" && !state.Valid() {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid state filter %q", state))
		return
	}
	tasks, err := s.orc.ListTasks(state, c.Query("assignee"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.orc.GetTask(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type claimRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

func (s *Server) claimTask(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	task, err := s.orc.ClaimTask(c.Param("id"), req.AgentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type completeRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Success *bool  `json:"success" binding:"required"`
	Result  string `json:"result"`
}

func (s *Server) completeTask(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	res, err := s.orc.CompleteTask(c.Param("id"), req.AgentID, *req.Success, req.Result)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": res.Task, "transitions": res.Transitions})
}

type assignRequest struct {
	MaxPerAgent int `json:"max_per_agent"`
}

func (s *Server) assignTasks(c *gin.Context) {
	var req assignRequest
	// Body is optional; an empty body uses the configured limit.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
			return
		}
	}
	assignments, err := s.orc.AssignTasks(req.MaxPerAgent)
	if err != nil {
		writeError(c, err)
		return
	}
	if assignments == nil {
		assignments = []models.Assignment{}
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

type openSessionRequest struct {
	TaskID       string   `json:"task_id" binding:"required"`
	Participants []string `json:"participants" binding:"required"`
}

func (s *Server) openSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	session, err := s.orc.Collaborate(req.TaskID, req.Participants)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) getSession(c *gin.Context) {
	session, err := s.orc.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type postMessageRequest struct {
	From    string `json:"from" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (s *Server) postMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	msg, err := s.orc.SendMessage(c.Param("id"), req.From, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type buildConsensusRequest struct {
	Positions map[string]models.Position `json:"positions" binding:"required"`
}

func (s *Server) buildConsensus(c *gin.Context) {
	var req buildConsensusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.New(fault.CodeInvalidArgument, "invalid request: %v", err))
		return
	}
	consensus, err := s.orc.BuildConsensus(c.Param("id"), req.Positions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, consensus)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.orc.Stats()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
