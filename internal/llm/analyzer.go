package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/pkg/types"
)

// analysisPrompt asks for the structured fields stored on a memory.
const analysisPrompt = `You are a personal historian and memory analyst.
For the user's journal entry below, extract the following and return STRICT JSON:

{
  "summary": "1-2 sentence summary",
  "themes": ["...", "..."],
  "topics": ["...", "..."],
  "emotions": [{"name": "joy", "score": 0.72}, {"name": "calm", "score": 0.44}],
  "people": ["Alice", "Grandma"],
  "places": ["Paris", "home"],
  "sentiment": {"label": "positive|neutral|negative", "score": 0.0},
  "memory_chunks": ["...", "..."]
}

Rules:
- Scores are between 0 and 1.
- If a field is not applicable, return an empty list for it.
- Sentiment label must be one of: positive, neutral, negative.
- Do not include ANY commentary outside the JSON.

Journal entry:
%s`

// AnalysisPrompt renders the analysis prompt for text.
func AnalysisPrompt(text string) string {
	return fmt.Sprintf(analysisPrompt, text)
}

// Analyzer extracts summary, themes, emotions, entities and sentiment from a
// memory's text with a single completion.
type Analyzer struct {
	gen TextGenerator
	log *logger.Logger
}

// NewAnalyzer creates an analyzer over gen. A nil logger is replaced with a no-op.
func NewAnalyzer(gen TextGenerator, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Analyzer{gen: gen, log: log}
}

// Analyze runs the analysis prompt. Generator errors are returned; a reply
// that cannot be parsed degrades to an empty analysis so the memory still
// becomes retrievable by its text.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*types.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return &types.Analysis{}, nil
	}

	raw, err := a.gen.Complete(ctx, AnalysisPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("analysis completion failed: %w", err)
	}

	analysis, err := ParseAnalysisResponse(raw)
	if err != nil {
		a.log.Warn("analysis response unparseable, storing empty analysis",
			"model", a.gen.GetModel(), "error", err)
		return &types.Analysis{}, nil
	}
	return analysis, nil
}
