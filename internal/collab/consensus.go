package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/mkretch/quorum/internal/fault"
	"github.com/mkretch/quorum/internal/store"
	"github.com/mkretch/quorum/pkg/models"
)

// DefaultThreshold is the agreement score at or above which the builder
// recommends proceeding.
const DefaultThreshold = 0.7

// Recommendations emitted by Build.
const (
	RecommendationProceed  = "proceed"
	RecommendationEscalate = "insufficient consensus — escalate"
)

// Builder aggregates per-agent positions into a consensus record.
type Builder struct {
	sessions store.SessionStore
	locks    lockAcquirer
	compare  Comparator
	now      func() time.Time

	mu        sync.Mutex
	threshold float64
}

type lockAcquirer interface {
	Acquire(key string, timeout time.Duration) (func(), error)
}

// NewBuilder creates a Builder sharing the coordinator's session locks.
// A nil comparator defaults to ExactComparator; a threshold outside (0,1]
// defaults to DefaultThreshold.
func NewBuilder(sessions store.SessionStore, coord *Coordinator, cmp Comparator, threshold float64) *Builder {
	if cmp == nil {
		cmp = ExactComparator{}
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Builder{
		sessions:  sessions,
		locks:     coord.lockTable(),
		compare:   cmp,
		threshold: threshold,
		now:       time.Now,
	}
}

// SetClock overrides the builder's time source (for tests).
func (b *Builder) SetClock(now func() time.Time) {
	b.now = now
}

// SetThreshold updates the proceed threshold at runtime. Values outside
// (0,1] are ignored.
func (b *Builder) SetThreshold(threshold float64) {
	if threshold <= 0 || threshold > 1 {
		return
	}
	b.mu.Lock()
	b.threshold = threshold
	b.mu.Unlock()
}

// Build computes a consensus from the given positions and stores it on the
// session, replacing any earlier consensus. Every position must come from a
// session participant. The agreement score is the mean pairwise similarity
// of the conclusions; a single position scores 1.0.
func (b *Builder) Build(sessionID string, positions map[string]models.Position) (*models.Consensus, error) {
	if len(positions) == 0 {
		return nil, fault.New(fault.CodeInvalidArgument, "consensus needs at least one position")
	}
	for agentID, p := range positions {
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, fault.New(fault.CodeInvalidArgument,
				"position from %s: confidence %v out of range 0-1", agentID, p.Confidence)
		}
	}

	release, err := b.locks.Acquire(sessionID, 0)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := b.sessions.GetSession(sessionID)
	if err != nil {
		return nil, fault.Internal(err, "get session %s", sessionID)
	}
	if s == nil {
		return nil, fault.New(fault.CodeNotFound, "session %s does not exist", sessionID)
	}
	for agentID := range positions {
		if !s.HasParticipant(agentID) {
			return nil, fault.New(fault.CodeForbidden, "agent %s is not a participant of session %s", agentID, sessionID)
		}
	}

	// Stable iteration order so grouping and output are deterministic.
	agentIDs := make([]string, 0, len(positions))
	for id := range positions {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	conclusions := make([]string, len(agentIDs))
	for i, id := range agentIDs {
		conclusions[i] = positions[id].Conclusion
	}

	consensus := &models.Consensus{
		AgreementScore: b.pairwiseScore(conclusions),
		BuiltAt:        b.now(),
	}
	consensus.AgreedPoints, consensus.DisagreedPoints = b.partition(conclusions)
	b.mu.Lock()
	threshold := b.threshold
	b.mu.Unlock()
	if consensus.AgreementScore >= threshold {
		consensus.Recommendation = RecommendationProceed
	} else {
		consensus.Recommendation = RecommendationEscalate
	}

	s.Consensus = consensus
	if err := b.sessions.PutSession(s); err != nil {
		return nil, fault.Internal(err, "put session %s", sessionID)
	}
	return consensus, nil
}

// pairwiseScore is the mean comparator score over all unordered pairs.
func (b *Builder) pairwiseScore(conclusions []string) float64 {
	n := len(conclusions)
	if n < 2 {
		return 1.0
	}
	var sum float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += b.compare.Score(conclusions[i], conclusions[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// partition groups similar conclusions and splits the groups by strict
// majority: a group backed by more than half the positions contributes its
// representative conclusion to the agreed points, the rest to the
// disagreed points.
func (b *Builder) partition(conclusions []string) (agreed, disagreed []string) {
	type group struct {
		representative string
		count          int
	}
	var groups []group
next:
	for _, c := range conclusions {
		for i := range groups {
			if b.compare.Similar(groups[i].representative, c) {
				groups[i].count++
				continue next
			}
		}
		groups = append(groups, group{representative: c, count: 1})
	}

	majority := len(conclusions) / 2
	for _, g := range groups {
		if g.count > majority {
			agreed = append(agreed, g.representative)
		} else {
			disagreed = append(disagreed, g.representative)
		}
	}
	return agreed, disagreed
}
