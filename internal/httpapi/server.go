// Package httpapi exposes the orchestrator over HTTP. Agents call in from
// independent processes, so every route maps onto one orchestrator
// operation and carries no session affinity.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/orchestrator"
	"github.com/mkretch/quorum/internal/version"
)

// Server serves the orchestrator API.
type Server struct {
	orc    *orchestrator.Orchestrator
	engine *gin.Engine
	hub    *wsHub
}

// NewServer builds the router around an orchestrator.
func NewServer(orc *orchestrator.Orchestrator) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		orc:    orc,
		engine: engine,
		hub:    newWSHub(),
	}
	s.routes()
	go s.hub.run(orc.Events())
	return s
}

// Handler returns the http.Handler for the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe runs the API on addr until the server errors.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Get()})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/agents", s.registerAgent)
		v1.GET("/agents", s.listAgents)
		v1.GET("/agents/:id", s.getAgent)
		v1.PATCH("/agents/:id/status", s.updateAgentStatus)

		v1.POST("/tasks", s.submitTask)
		v1.POST("/plans", s.submitPlan)
		v1.GET("/tasks", s.listTasks)
		v1.GET("/tasks/:id", s.getTask)
		v1.POST("/tasks/:id/claim", s.claimTask)
		v1.POST("/tasks/:id/complete", s.completeTask)

		v1.POST("/assignments", s.assignTasks)

		v1.POST("/sessions", s.openSession)
		v1.GET("/sessions/:id", s.getSession)
		v1.POST("/sessions/:id/messages", s.postMessage)
		v1.POST("/sessions/:id/consensus", s.buildConsensus)

		v1.GET("/stats", s.stats)
		v1.GET("/events", s.streamEvents)
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func writeError(c *gin.Context, err error) {
	c.JSON(fault.HTTPStatus(err), errorBody{Error: errorDetail{
		Code:      string(fault.CodeOf(err)),
		Message:   err.Error(),
		Retryable: fault.Retryable(err),
	}})
}
