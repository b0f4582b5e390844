package llm

import (
	"context"
	"fmt"
	"strings"
)

// DailyPromptInstruction asks for one reflection question to record a memory about.
const DailyPromptInstruction = `You are a personal historian for a user's life story project.
Generate a question that helps them reflect on:
- childhood
- major life events
- relationships
- personal growth
- values or big lessons

The question should be:
- specific
- emotional or thoughtful
- short (1 sentence)
- easy to answer via voice

Reply with the question only.`

// PromptWriter generates daily reflection prompts.
type PromptWriter struct {
	gen TextGenerator
}

// NewPromptWriter creates a prompt writer over gen.
func NewPromptWriter(gen TextGenerator) *PromptWriter {
	return &PromptWriter{gen: gen}
}

// DailyPrompt returns one reflection question, trimmed of whitespace and quotes.
func (w *PromptWriter) DailyPrompt(ctx context.Context) (string, error) {
	out, err := w.gen.Complete(ctx, DailyPromptInstruction)
	if err != nil {
		return "", fmt.Errorf("prompt generation failed: %w", err)
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}
