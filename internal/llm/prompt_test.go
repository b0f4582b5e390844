package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptWriter_DailyPrompt(t *testing.T) {
	gen := &stubGenerator{reply: "  \"What did your first bedroom look like?\"\n"}
	w := NewPromptWriter(gen)

	out, err := w.DailyPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "What did your first bedroom look like?", out)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "personal historian")
}

func TestPromptWriter_Error(t *testing.T) {
	w := NewPromptWriter(&stubGenerator{err: errors.New("offline")})
	_, err := w.DailyPrompt(context.Background())
	assert.ErrorContains(t, err, "offline")
}
