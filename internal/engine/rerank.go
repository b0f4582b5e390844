package engine

import (
	"sort"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Rerank blends similarity with recency, importance, confidence and domain
// fit, drops flagged or ineligible memories and returns the rest best first.
// The order is total: score, similarity, confidence, updated_at (newer
// first), then id.
func Rerank(candidates []storage.Candidate, q QueryContext, now time.Time, rc *config.RankingConfig) []types.ScoredCandidate {
	out := make([]types.ScoredCandidate, 0, len(candidates))
	w := rc.Weights

	for _, c := range candidates {
		m := c.Memory
		if m.Flagged || !m.EligibleForRetrieval() {
			continue
		}

		comp := types.ScoreComponents{
			Similarity: clamp01(c.Similarity),
			Recency:    Recency(now, m.UpdatedAt, rc.HalfLifeFor(string(m.MemoryType))),
			Importance: Importance(&m, q.Domain, rc),
			Confidence: clamp01(m.ConfidenceScore),
			Domain:     DomainBoost(&m, q, rc),
		}
		score := w.Similarity*comp.Similarity +
			w.Recency*comp.Recency +
			w.Importance*comp.Importance +
			w.Confidence*comp.Confidence +
			w.Domain*comp.Domain

		out = append(out, types.ScoredCandidate{
			Memory:     m,
			Similarity: c.Similarity,
			Score:      score,
			Components: comp,
		})
	}

	sortScored(out)
	return out
}

func sortScored(s []types.ScoredCandidate) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Memory.ConfidenceScore != b.Memory.ConfidenceScore {
			return a.Memory.ConfidenceScore > b.Memory.ConfidenceScore
		}
		if !a.Memory.UpdatedAt.Equal(b.Memory.UpdatedAt) {
			return a.Memory.UpdatedAt.After(b.Memory.UpdatedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})
}
