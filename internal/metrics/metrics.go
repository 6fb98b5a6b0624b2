// Package metrics exposes Prometheus instrumentation for the orchestration
// core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors tracked by the orchestrator.
type Metrics struct {
	TasksSubmitted   prometheus.Counter
	TaskTransitions  *prometheus.CounterVec
	ClaimOutcomes    *prometheus.CounterVec
	AgentsRegistered prometheus.Counter
	SessionsOpened   prometheus.Counter
	ConsensusBuilt   *prometheus.CounterVec
	EventsDropped    prometheus.Counter
}

// New creates the collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer wires them into the default /metrics output.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted into the graph.",
		}),
		TaskTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "task_transitions_total",
			Help:      "Task state transitions by destination state.",
		}, []string{"to"}),
		ClaimOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "claim_outcomes_total",
			Help:      "Claim attempts by outcome (won, already_claimed, not_ready, busy, error).",
		}, []string{"outcome"}),
		AgentsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "agents_registered_total",
			Help:      "Agent registrations accepted.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "sessions_opened_total",
			Help:      "Collaboration sessions opened.",
		}),
		ConsensusBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "consensus_built_total",
			Help:      "Consensus builds by recommendation.",
		}, []string{"recommendation"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the event channel stayed full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TasksSubmitted,
			m.TaskTransitions,
			m.ClaimOutcomes,
			m.AgentsRegistered,
			m.SessionsOpened,
			m.ConsensusBuilt,
			m.EventsDropped,
		)
	}
	return m
}

// Nop returns unregistered collectors, for callers that do not scrape.
func Nop() *Metrics {
	return New(nil)
}
