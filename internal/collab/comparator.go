package collab

import "strings"

// Comparator scores the similarity of two conclusions. Comparison semantics
// are domain-specific, so the strategy is injectable; the orchestrator only
// assumes scores fall in [0,1] and that Similar is reflexive.
type Comparator interface {
	// Score returns the similarity of two conclusions in [0,1].
	Score(a, b string) float64
	// Similar reports whether two conclusions count as the same position.
	Similar(a, b string) bool
}

// ExactComparator treats conclusions as equal when they match after
// trimming and case-folding. This is the default strategy.
type ExactComparator struct{}

// Score implements Comparator.
func (c ExactComparator) Score(a, b string) float64 {
	if c.Similar(a, b) {
		return 1.0
	}
	return 0.0
}

// Similar implements Comparator.
func (ExactComparator) Similar(a, b string) bool {
	return normalize(a) == normalize(b)
}

// TokenComparator scores conclusions by Jaccard overlap of their word sets.
// Conclusions count as similar at or above Cutoff.
type TokenComparator struct {
	// Cutoff is the Similar threshold; zero means 0.5.
	Cutoff float64
}

// Score implements Comparator.
func (c TokenComparator) Score(a, b string) float64 {
	ta := tokens(a)
	tb := tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	intersection := 0
	union := len(tb)
	for tok := range ta {
		if tb[tok] {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

// Similar implements Comparator.
func (c TokenComparator) Similar(a, b string) bool {
	cutoff := c.Cutoff
	if cutoff == 0 {
		cutoff = 0.5
	}
	return c.Score(a, b) >= cutoff
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(normalize(s)) {
		out[f] = true
	}
	return out
}
