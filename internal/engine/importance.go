package engine

import (
	"strings"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

// defaultImportance applies to memory types missing from the profile.
const defaultImportance = 0.5

// Importance scores a memory by type, important tags and, for project
// memories, whether the query is about work or projects.
func Importance(m *types.Memory, domain Domain, rc *config.RankingConfig) float64 {
	score, ok := rc.Importance[string(m.MemoryType)]
	if !ok {
		score = defaultImportance
	}
	if hasAnyTag(m.Tags, rc.ImportantTags) {
		score += rc.ImportantTagBonus
	}
	if m.MemoryType == types.MemoryTypeProject && (domain == DomainJobs || domain == DomainProject) {
		score += rc.ProjectDomainBonus
	}
	return clamp01(score)
}

func hasAnyTag(tags, wanted []string) bool {
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		for _, w := range wanted {
			if t == strings.ToLower(w) {
				return true
			}
		}
	}
	return false
}
