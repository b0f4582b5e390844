package engine

import (
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// HeuristicClassifier assigns a memory type from first-person phrasing.
// Rules are checked in order; text matching none is an event.
type HeuristicClassifier struct{}

var classifierRules = []struct {
	memoryType types.MemoryType
	phrases    []string
}{
	{types.MemoryTypePreference, []string{"i like", "i love", "i prefer", "i enjoy", "favorite"}},
	{types.MemoryTypeReflection, []string{"i believe", "i think", "i feel that", "i realized", "i learned", "i reflect", "reflected on", "reflection on"}},
	{types.MemoryTypeIdentity, []string{"i am ", "i'm ", "my role", "as a ", "i see myself"}},
	{types.MemoryTypeProject, []string{"working on", "building", "project", "roadmap", "planning to", "shipping"}},
}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(text string) types.MemoryType {
	lower := strings.ToLower(text)
	for _, rule := range classifierRules {
		for _, p := range rule.phrases {
			if strings.Contains(lower, p) {
				return rule.memoryType
			}
		}
	}
	return types.MemoryTypeEvent
}
