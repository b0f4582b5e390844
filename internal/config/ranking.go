package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Weights are the coefficients of the rerank score:
//
//	score = Similarity*similarity + Recency*recency + Importance*importance
//	      + Confidence*confidence + Domain*domain_boost
//
// Every component is clamped to [0,1] before weighting. Weights must be
// non-negative; their sum is not constrained, but with the defaults (sum 1.0)
// scores stay in [0,1].
type Weights struct {
	// Similarity weights raw cosine similarity to the query (default: 0.6).
	Similarity float64 `yaml:"similarity"`

	// Recency weights exponential decay since the last update (default: 0.15).
	Recency float64 `yaml:"recency"`

	// Importance weights the memory-type importance lookup (default: 0.1).
	Importance float64 `yaml:"importance"`

	// Confidence weights the trust ledger confidence score (default: 0.1).
	Confidence float64 `yaml:"confidence"`

	// Domain weights the topical boost for queries with a domain signal (default: 0.05).
	Domain float64 `yaml:"domain"`
}

// RankingConfig is the tunable ranking profile. None of these values are
// canonical; they are defaults chosen to match observed behaviour and can be
// overridden from a YAML file or the environment.
type RankingConfig struct {
	// File is the YAML profile path this config was loaded from, if any.
	File string `yaml:"-"`

	Weights Weights `yaml:"weights"`

	// HalfLifeDays is the recency half-life per memory type, in days.
	HalfLifeDays map[string]float64 `yaml:"half_life_days"`

	// DefaultHalfLifeDays applies to memory types missing from HalfLifeDays.
	DefaultHalfLifeDays float64 `yaml:"default_half_life_days"`

	// Importance is the base importance per memory type, in [0,1].
	Importance map[string]float64 `yaml:"importance"`

	// ImportantTags earn ImportantTagBonus importance when present on a memory.
	ImportantTags     []string `yaml:"important_tags"`
	ImportantTagBonus float64  `yaml:"important_tag_bonus"`

	// ProjectDomainBonus is added to the importance of project memories when the
	// query is about work or projects.
	ProjectDomainBonus float64 `yaml:"project_domain_bonus"`

	// DomainMatchBase is the domain boost for a topical match before the per-type
	// adjustment is applied.
	DomainMatchBase float64 `yaml:"domain_match_base"`

	// CandidateLimit is K, the number of similarity candidates (default: 50).
	CandidateLimit int `yaml:"candidate_limit"`

	// MaxContext is N, the number of memories in the grounding bundle (default: 6).
	MaxContext int `yaml:"max_context"`

	// ConfirmBoost is the default confidence increment for a confirmation.
	ConfirmBoost float64 `yaml:"confirm_boost"`

	// ConfidenceCeiling caps confirmations (default: 1.0).
	ConfidenceCeiling float64 `yaml:"confidence_ceiling"`
}

// DefaultRanking returns the default ranking profile.
func DefaultRanking() RankingConfig {
	return RankingConfig{
		Weights: Weights{
			Similarity: 0.6,
			Recency:    0.15,
			Importance: 0.1,
			Confidence: 0.1,
			Domain:     0.05,
		},
		HalfLifeDays: map[string]float64{
			"preference": 90,
			"identity":   120,
			"event":      21,
			"project":    45,
			"reflection": 60,
		},
		DefaultHalfLifeDays: 45,
		Importance: map[string]float64{
			"project":    0.9,
			"identity":   0.8,
			"reflection": 0.7,
			"preference": 0.6,
			"event":      0.5,
		},
		ImportantTags:      []string{"important", "goal", "milestone", "priority"},
		ImportantTagBonus:  0.1,
		ProjectDomainBonus: 0.1,
		DomainMatchBase:    0.5,
		CandidateLimit:     50,
		MaxContext:         6,
		ConfirmBoost:       0.05,
		ConfidenceCeiling:  1.0,
	}
}

// RankingConfigWithFile returns the defaults tagged with the profile path to load.
func RankingConfigWithFile(path string) RankingConfig {
	rc := DefaultRanking()
	rc.File = path
	return rc
}

// LoadFile overlays the YAML profile at path onto rc. Keys absent from the file
// keep their current values; map entries are merged.
func (rc *RankingConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading ranking profile: %w", err)
	}
	if err := yaml.Unmarshal(data, rc); err != nil {
		return fmt.Errorf("config: parsing ranking profile %s: %w", path, err)
	}
	rc.File = path
	return nil
}

// applyRankingOverrides applies RECALL_RANKING_* environment overrides.
func applyRankingOverrides(k *koanf.Koanf, rc *RankingConfig) {
	rc.Weights.Similarity = getFloat(k, "ranking.weight.similarity", rc.Weights.Similarity)
	rc.Weights.Recency = getFloat(k, "ranking.weight.recency", rc.Weights.Recency)
	rc.Weights.Importance = getFloat(k, "ranking.weight.importance", rc.Weights.Importance)
	rc.Weights.Confidence = getFloat(k, "ranking.weight.confidence", rc.Weights.Confidence)
	rc.Weights.Domain = getFloat(k, "ranking.weight.domain", rc.Weights.Domain)
	rc.CandidateLimit = getInt(k, "ranking.candidate.limit", rc.CandidateLimit)
	rc.MaxContext = getInt(k, "ranking.max.context", rc.MaxContext)
	rc.ConfirmBoost = getFloat(k, "ranking.confirm.boost", rc.ConfirmBoost)
}

// HalfLifeFor returns the half-life in days for the given memory type.
func (rc *RankingConfig) HalfLifeFor(memoryType string) float64 {
	if hl, ok := rc.HalfLifeDays[memoryType]; ok && hl > 0 {
		return hl
	}
	return rc.DefaultHalfLifeDays
}
