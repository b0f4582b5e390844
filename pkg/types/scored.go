package types

// ScoreComponents is the per-factor breakdown of a reranked candidate.
// Every component is clamped to [0,1] before weighting.
type ScoreComponents struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
	Confidence float64 `json:"confidence"`
	Domain     float64 `json:"domain"`
}

// ScoredCandidate is a memory with its raw similarity and blended score.
// It only lives for the duration of a query.
type ScoredCandidate struct {
	Memory     Memory          `json:"memory"`
	Similarity float64         `json:"raw_similarity"`
	Score      float64         `json:"score"`
	Components ScoreComponents `json:"components"`
}
