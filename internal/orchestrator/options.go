package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkretch/quorum/internal/collab"
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*options)

type options struct {
	maxTasksPerAgent   int
	claimLockTimeout   time.Duration
	consensusThreshold float64
	comparator         collab.Comparator
	staleHorizon       time.Duration
	eventBuffer        int
	logger             *DebugLogger
	registerer         prometheus.Registerer
}

func defaultOptions() *options {
	return &options{
		eventBuffer: 128,
		logger:      NopLogger(),
	}
}

// WithMaxTasksPerAgent sets the per-agent in-progress task limit used by
// auto-assignment.
func WithMaxTasksPerAgent(n int) Option {
	return func(o *options) { o.maxTasksPerAgent = n }
}

// WithClaimLockTimeout sets how long a claim waits for a task's lock before
// giving up with a busy error.
func WithClaimLockTimeout(d time.Duration) Option {
	return func(o *options) { o.claimLockTimeout = d }
}

// WithConsensusThreshold sets the agreement score at or above which the
// consensus builder recommends proceeding.
func WithConsensusThreshold(threshold float64) Option {
	return func(o *options) { o.consensusThreshold = threshold }
}

// WithComparator sets the conclusion similarity strategy.
func WithComparator(c collab.Comparator) Option {
	return func(o *options) { o.comparator = c }
}

// WithStaleHorizon sets how long since last_seen an agent may go before the
// scheduler stops considering it. Zero disables staleness checks.
func WithStaleHorizon(d time.Duration) Option {
	return func(o *options) { o.staleHorizon = d }
}

// WithEventBuffer sets the event channel's buffer size.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics registers the orchestrator's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}
