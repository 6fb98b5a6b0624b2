package models

import (
	"sort"
	"strings"
	"time"
)

// AgentStatus represents the availability of a registered agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent can accept work.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is working on at least one task.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusOffline indicates the agent is unreachable.
	AgentStatusOffline AgentStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusOffline:
		return true
	default:
		return false
	}
}

// Agent represents an autonomous worker registered with the orchestrator.
type Agent struct {
	// ID is the unique, caller-supplied identifier for this agent.
	ID string `json:"id"`
	// Name is a human-readable label.
	Name string `json:"name"`
	// Type is a free-form role tag (e.g. "builder", "reviewer").
	Type string `json:"type"`
	// Capabilities is the set of skill tags this agent offers.
	Capabilities []string `json:"capabilities"`
	// Status is the agent's current availability.
	Status AgentStatus `json:"status"`
	// RegisteredAt is when the agent first registered.
	RegisteredAt time.Time `json:"registered_at"`
	// LastSeen is when the agent last registered or updated its status.
	LastSeen time.Time `json:"last_seen"`
}

// HasCapabilities reports whether the agent's capability set is a superset
// of the required set. An empty requirement matches every agent.
func (a *Agent) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// NormalizeCapabilities trims and case-folds capability strings, drops
// duplicates, and returns them sorted. Returns false if any entry is empty
// after trimming.
func NormalizeCapabilities(caps []string) ([]string, bool) {
	seen := make(map[string]bool, len(caps))
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			return nil, false
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out, true
}

// CapabilitiesEqual reports whether two normalized capability sets are equal.
func CapabilitiesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
