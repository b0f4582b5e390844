package engine

import (
	"fmt"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

const (
	// excerptRunes caps the body excerpt used when a memory has no summary.
	excerptRunes = 400

	// previewRunes caps insight previews, ellipsis included.
	previewRunes = 160
)

// Snippet is one memory rendered for the answer prompt.
type Snippet struct {
	MemoryID string `json:"memory_id"`
	Text     string `json:"text"`
}

// Bundle is the grounding context handed to the answer generator.
type Bundle struct {
	Snippets []Snippet `json:"snippets"`
	Text     string    `json:"text"`
}

// BuildContext renders the first maxContext scored memories. The returned ids
// match the bundle's snippets exactly and in order.
func BuildContext(scored []types.ScoredCandidate, maxContext int) (Bundle, []string) {
	n := len(scored)
	if maxContext >= 0 && n > maxContext {
		n = maxContext
	}

	b := Bundle{Snippets: make([]Snippet, 0, n)}
	ids := make([]string, 0, n)
	lines := make([]string, 0, n)
	for _, sc := range scored[:n] {
		text := snippetText(&sc.Memory)
		b.Snippets = append(b.Snippets, Snippet{MemoryID: sc.Memory.ID, Text: text})
		ids = append(ids, sc.Memory.ID)
		lines = append(lines, text)
	}
	b.Text = strings.Join(lines, "\n")
	return b, ids
}

func snippetText(m *types.Memory) string {
	body := strings.TrimSpace(m.Summary)
	if body == "" {
		body = truncateRunes(strings.TrimSpace(m.Content), excerptRunes, false)
	}
	memoryType := m.MemoryType
	if memoryType == "" {
		memoryType = types.MemoryTypeEvent
	}
	return fmt.Sprintf("[Entry %s | %s | %s] %s", m.ID, m.CreatedAt.UTC().Format("2006-01-02"), memoryType, body)
}

// truncateRunes shortens s to max runes and appends "...". When inclusive the
// ellipsis counts toward max.
func truncateRunes(s string, max int, inclusive bool) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if inclusive {
		return string(r[:max-3]) + "..."
	}
	return string(r[:max]) + "..."
}
