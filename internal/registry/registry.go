// Package registry tracks known agents, their capability sets, and their
// availability. It is the exclusive owner of agent records.
package registry

import (
	"sync"
	"time"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

// Registry manages agent registration and lookup over an injected store.
type Registry struct {
	store store.AgentStore
	// staleHorizon is how long an agent may go without an update before
	// capable-agent lookups skip it. Zero disables staleness filtering.
	staleHorizon time.Duration
	// now is injectable for tests.
	now func() time.Time
	// mu serializes register's check-then-put so concurrent registrations
	// of the same id cannot interleave.
	mu sync.Mutex
}

// New creates a Registry backed by the given store.
func New(s store.AgentStore, staleHorizon time.Duration) *Registry {
	return &Registry{
		store:        s,
		staleHorizon: staleHorizon,
		now:          time.Now,
	}
}

// SetClock overrides the registry's time source (for tests).
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Register adds an agent with status idle. Re-registration with identical
// name, type, and capabilities is idempotent and refreshes the heartbeat;
// conflicting data is rejected.
func (r *Registry) Register(id, name, agentType string, capabilities []string) (*models.Agent, error) {
	if id == "" {
		return nil, fault.New(fault.CodeInvalidArgument, "agent id must not be empty")
	}
	caps, ok := models.NormalizeCapabilities(capabilities)
	if !ok {
		return nil, fault.New(fault.CodeInvalidArgument, "agent %s: capabilities must be non-empty strings", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.GetAgent(id)
	if err != nil {
		return nil, fault.Internal(err, "get agent %s", id)
	}

	now := r.now()
	if existing != nil {
		if existing.Name != name || existing.Type != agentType ||
			!models.CapabilitiesEqual(existing.Capabilities, caps) {
			return nil, fault.New(fault.CodeDuplicateConflict,
				"agent %s already registered with different data", id)
		}
		existing.LastSeen = now
		if err := r.store.PutAgent(existing); err != nil {
			return nil, fault.Internal(err, "refresh agent %s", id)
		}
		return existing, nil
	}

	a := &models.Agent{
		ID:           id,
		Name:         name,
		Type:         agentType,
		Capabilities: caps,
		Status:       models.AgentStatusIdle,
		RegisteredAt: now,
		LastSeen:     now,
	}
	if err := r.store.PutAgent(a); err != nil {
		return nil, fault.Internal(err, "put agent %s", id)
	}
	return a, nil
}

// UpdateStatus overwrites an agent's status and refreshes its heartbeat.
func (r *Registry) UpdateStatus(id string, status models.AgentStatus) (*models.Agent, error) {
	if !status.Valid() {
		return nil, fault.New(fault.CodeInvalidArgument, "unknown agent status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.store.GetAgent(id)
	if err != nil {
		return nil, fault.Internal(err, "get agent %s", id)
	}
	if a == nil {
		return nil, fault.New(fault.CodeNotFound, "agent %s not registered", id)
	}

	a.Status = status
	a.LastSeen = r.now()
	if err := r.store.PutAgent(a); err != nil {
		return nil, fault.Internal(err, "put agent %s", id)
	}
	return a, nil
}

// Get returns the agent or a not-found fault.
func (r *Registry) Get(id string) (*models.Agent, error) {
	a, err := r.store.GetAgent(id)
	if err != nil {
		return nil, fault.Internal(err, "get agent %s", id)
	}
	if a == nil {
		return nil, fault.New(fault.CodeNotFound, "agent %s not registered", id)
	}
	return a, nil
}

// List returns all registered agents ordered by id.
func (r *Registry) List() ([]*models.Agent, error) {
	agents, err := r.store.ListAgents()
	if err != nil {
		return nil, fault.Internal(err, "list agents")
	}
	return agents, nil
}

// FindCapable returns agents whose capability set is a superset of the
// requirement, filtered by status. Superset check, not exact match. Agents
// past the stale horizon are skipped. Results are ordered by id so callers
// iterating "first capable agent" are deterministic.
func (r *Registry) FindCapable(required []string, status models.AgentStatus) ([]*models.Agent, error) {
	agents, err := r.store.ListAgents()
	if err != nil {
		return nil, fault.Internal(err, "list agents")
	}

	cutoff := time.Time{}
	if r.staleHorizon > 0 {
		cutoff = r.now().Add(-r.staleHorizon)
	}

	var capable []*models.Agent
	for _, a := range agents {
		if status != "" && a.Status != status {
			continue
		}
		if !cutoff.IsZero() && a.LastSeen.Before(cutoff) {
			continue
		}
		if !a.HasCapabilities(required) {
			continue
		}
		capable = append(capable, a)
	}
	return capable, nil
}
