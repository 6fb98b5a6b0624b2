package orchestrator

import (
	"time"

	"github.com/mkretch/quorum/internal/claim"
	"github.com/mkretch/quorum/internal/collab"
	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/internal/locks"
	"github.com/mkretch/quorum/internal/metrics"
	"github.com/mkretch/quorum/internal/registry"
	"github.com/mkretch/quorum/internal/scheduler"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

// Orchestrator is the facade over the registry, task graph, scheduler,
// claim manager, and collaboration services. All coordination state lives
// in a single StateStore shared by the components.
type Orchestrator struct {
	store     store.StateStore
	agents    *registry.Registry
	graph     *graph.Graph
	claims    *claim.Manager
	scheduler *scheduler.Scheduler
	coord     *collab.Coordinator
	consensus *collab.Builder
	emitter   *EventEmitter
	metrics   *metrics.Metrics
	logger    *DebugLogger
}

// Stats summarizes orchestrator state for operators.
type Stats struct {
	Agents        map[models.AgentStatus]int `json:"agents"`
	Tasks         map[models.TaskState]int   `json:"tasks"`
	Sessions      int                        `json:"sessions"`
	EventsDropped uint64                     `json:"events_dropped"`
}

// New creates an Orchestrator over the given store.
func New(st store.StateStore, opts ...Option) (*Orchestrator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	lockTable := locks.NewTable()
	agents := registry.New(st, o.staleHorizon)
	g, err := graph.New(st, lockTable)
	if err != nil {
		return nil, err
	}
	g.SetDebugLog(o.logger.Log)

	claims := claim.NewManager(st, g, agents, lockTable, o.claimLockTimeout)
	claims.SetDebugLog(o.logger.Log)
	sched := scheduler.New(g, agents, claims, o.maxTasksPerAgent)
	sched.SetDebugLog(o.logger.Log)

	coord := collab.NewCoordinator(st, st, agents)
	consensus := collab.NewBuilder(st, coord, o.comparator, o.consensusThreshold)

	orc := &Orchestrator{
		store:     st,
		agents:    agents,
		graph:     g,
		claims:    claims,
		scheduler: sched,
		coord:     coord,
		consensus: consensus,
		emitter:   NewEventEmitter(o.eventBuffer),
		metrics:   metrics.New(o.registerer),
		logger:    o.logger,
	}
	orc.emitter.onDrop = orc.metrics.EventsDropped.Inc
	return orc, nil
}

// ApplyTunables updates the runtime-adjustable settings. Out-of-range
// values leave the current setting in place.
func (o *Orchestrator) ApplyTunables(maxTasksPerAgent int, consensusThreshold float64) {
	o.scheduler.SetMaxTasksPerAgent(maxTasksPerAgent)
	o.consensus.SetThreshold(consensusThreshold)
	o.logger.Log("tunables applied: max_tasks_per_agent=%d consensus_threshold=%.2f", maxTasksPerAgent, consensusThreshold)
}

// Events returns the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Close shuts down the event stream and releases the store.
func (o *Orchestrator) Close() error {
	o.emitter.Close()
	return o.store.Close()
}

// RegisterAgent adds or refreshes an agent in the registry.
func (o *Orchestrator) RegisterAgent(id, name, agentType string, capabilities []string) (*models.Agent, error) {
	agent, err := o.agents.Register(id, name, agentType, capabilities)
	if err != nil {
		return nil, err
	}
	o.metrics.AgentsRegistered.Inc()
	o.logger.Log("agent %s registered (caps=%v)", agent.ID, agent.Capabilities)
	o.emitter.Emit(Event{Type: EventAgentRegistered, AgentID: agent.ID, Timestamp: time.Now()})
	return agent, nil
}

// UpdateAgentStatus changes an agent's availability.
func (o *Orchestrator) UpdateAgentStatus(id string, status models.AgentStatus) (*models.Agent, error) {
	return o.agents.UpdateStatus(id, status)
}

// GetAgent returns an agent by id.
func (o *Orchestrator) GetAgent(id string) (*models.Agent, error) {
	return o.agents.Get(id)
}

// ListAgents returns all registered agents.
func (o *Orchestrator) ListAgents() ([]*models.Agent, error) {
	return o.agents.List()
}

// SubmitTask adds one task to the graph.
func (o *Orchestrator) SubmitTask(spec graph.SubmitSpec) (*models.Task, error) {
	task, err := o.graph.Submit(spec)
	if err != nil {
		return nil, err
	}
	o.noteSubmitted(task)
	return task, nil
}

// SubmitPlan adds a batch of interdependent tasks atomically.
func (o *Orchestrator) SubmitPlan(plan []graph.PlanTask) ([]*models.Task, error) {
	tasks, err := o.graph.SubmitPlan(plan)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		o.noteSubmitted(t)
	}
	return tasks, nil
}

func (o *Orchestrator) noteSubmitted(task *models.Task) {
	o.metrics.TasksSubmitted.Inc()
	o.metrics.TaskTransitions.WithLabelValues(string(task.State)).Inc()
	o.logger.Log("task %s submitted (state=%s deps=%d)", task.ID, task.State, len(task.Dependencies))
	o.emitter.Emit(Event{Type: EventTaskSubmitted, TaskID: task.ID, Message: string(task.State), Timestamp: time.Now()})
	if task.State == models.TaskStateReady {
		o.emitter.Emit(Event{Type: EventTaskReady, TaskID: task.ID, Timestamp: time.Now()})
	}
}

// GetTask returns a task by id.
func (o *Orchestrator) GetTask(id string) (*models.Task, error) {
	return o.graph.Get(id)
}

// ListTasks returns tasks filtered by state and assignee; empty filters
// match everything.
func (o *Orchestrator) ListTasks(state models.TaskState, assignee string) ([]*models.Task, error) {
	return o.graph.List(state, assignee)
}

// AssignTasks runs one auto-assignment pass. maxPerAgent <= 0 uses the
// configured limit.
func (o *Orchestrator) AssignTasks(maxPerAgent int) ([]models.Assignment, error) {
	assignments, err := o.scheduler.AutoAssign(maxPerAgent)
	for _, a := range assignments {
		o.metrics.ClaimOutcomes.WithLabelValues("won").Inc()
		o.metrics.TaskTransitions.WithLabelValues(string(models.TaskStateInProgress)).Inc()
		o.emitter.Emit(Event{Type: EventTaskClaimed, TaskID: a.TaskID, AgentID: a.AgentID, Timestamp: time.Now()})
	}
	return assignments, err
}

// ClaimTask atomically assigns a ready task to an agent.
func (o *Orchestrator) ClaimTask(taskID, agentID string) (*models.Task, error) {
	task, err := o.claims.Claim(taskID, agentID)
	if err != nil {
		o.metrics.ClaimOutcomes.WithLabelValues(claimOutcome(err)).Inc()
		return nil, err
	}
	o.metrics.ClaimOutcomes.WithLabelValues("won").Inc()
	o.metrics.TaskTransitions.WithLabelValues(string(models.TaskStateInProgress)).Inc()
	o.logger.Log("task %s claimed by agent %s", taskID, agentID)
	o.emitter.Emit(Event{Type: EventTaskClaimed, TaskID: taskID, AgentID: agentID, Timestamp: time.Now()})
	return task, nil
}

func claimOutcome(err error) string {
	switch fault.CodeOf(err) {
	case fault.CodeAlreadyClaimed:
		return "already_claimed"
	case fault.CodeNotReady:
		return "not_ready"
	case fault.CodeBusy:
		return "busy"
	default:
		return "error"
	}
}

// CompleteTask finalizes an in-progress task and propagates readiness or
// blockage through the graph.
func (o *Orchestrator) CompleteTask(taskID, agentID string, success bool, result string) (*claim.Result, error) {
	res, err := o.claims.Complete(taskID, agentID, success, result)
	if err != nil {
		return nil, err
	}

	o.metrics.TaskTransitions.WithLabelValues(string(res.Task.State)).Inc()
	eventType := EventTaskCompleted
	if !success {
		eventType = EventTaskFailed
	}
	o.logger.Log("task %s finalized by agent %s (state=%s, %d downstream transitions)",
		taskID, agentID, res.Task.State, len(res.Transitions))
	o.emitter.Emit(Event{Type: eventType, TaskID: taskID, AgentID: agentID, Timestamp: time.Now()})

	for _, tr := range res.Transitions {
		o.metrics.TaskTransitions.WithLabelValues(string(tr.To)).Inc()
		switch tr.To {
		case models.TaskStateReady:
			o.emitter.Emit(Event{Type: EventTaskReady, TaskID: tr.TaskID, Timestamp: time.Now()})
		case models.TaskStateBlocked:
			o.emitter.Emit(Event{Type: EventTaskBlocked, TaskID: tr.TaskID, Message: "blocked by " + taskID, Timestamp: time.Now()})
		}
	}
	return res, nil
}

// Collaborate opens a discussion session on a task.
func (o *Orchestrator) Collaborate(taskID string, participantIDs []string) (*models.Session, error) {
	session, err := o.coord.Open(taskID, participantIDs)
	if err != nil {
		return nil, err
	}
	o.metrics.SessionsOpened.Inc()
	o.logger.Log("session %s opened on task %s (%d participants)", session.ID, taskID, len(participantIDs))
	o.emitter.Emit(Event{Type: EventSessionOpened, SessionID: session.ID, TaskID: taskID, Timestamp: time.Now()})
	return session, nil
}

// SendMessage appends a message to a session.
func (o *Orchestrator) SendMessage(sessionID, from, content string) (*models.Message, error) {
	msg, err := o.coord.PostMessage(sessionID, from, content)
	if err != nil {
		return nil, err
	}
	o.emitter.Emit(Event{Type: EventMessagePosted, SessionID: sessionID, AgentID: from, Timestamp: time.Now()})
	return msg, nil
}

// GetSession returns a session by id.
func (o *Orchestrator) GetSession(sessionID string) (*models.Session, error) {
	return o.coord.Get(sessionID)
}

// BuildConsensus aggregates positions into a consensus on the session.
func (o *Orchestrator) BuildConsensus(sessionID string, positions map[string]models.Position) (*models.Consensus, error) {
	consensus, err := o.consensus.Build(sessionID, positions)
	if err != nil {
		return nil, err
	}
	o.metrics.ConsensusBuilt.WithLabelValues(consensus.Recommendation).Inc()
	o.logger.Log("session %s consensus: score=%.3f recommendation=%q", sessionID, consensus.AgreementScore, consensus.Recommendation)
	o.emitter.Emit(Event{Type: EventConsensusBuilt, SessionID: sessionID, Message: consensus.Recommendation, Timestamp: time.Now()})
	return consensus, nil
}

// Stats reports aggregate counts across the store.
func (o *Orchestrator) Stats() (*Stats, error) {
	agents, err := o.agents.List()
	if err != nil {
		return nil, err
	}
	tasks, err := o.graph.List("", "")
	if err != nil {
		return nil, err
	}
	sessions, err := o.store.ListSessions()
	if err != nil {
		return nil, fault.Internal(err, "list sessions")
	}

	s := &Stats{
		Agents:        make(map[models.AgentStatus]int),
		Tasks:         make(map[models.TaskState]int),
		Sessions:      len(sessions),
		EventsDropped: o.emitter.DroppedCount(),
	}
	for _, a := range agents {
		s.Agents[a.Status]++
	}
	for _, t := range tasks {
		s.Tasks[t.State]++
	}
	return s, nil
}
