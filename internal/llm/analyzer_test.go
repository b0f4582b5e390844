package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/pkg/types"
)

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubGenerator) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubGenerator) GetModel() string { return "stub" }

type stubChat struct {
	stubGenerator
	messages []Message
}

func (s *stubChat) Chat(_ context.Context, messages []Message) (string, error) {
	s.messages = messages
	return s.reply, s.err
}

func TestParseAnalysisResponse_Full(t *testing.T) {
	raw := "Here you go:\n```json\n" + `{
		"summary": " Lunch with Sam at the harbor. ",
		"themes": ["friendship"],
		"topics": "food",
		"emotions": [{"name": "joy", "score": 1.4}, {"name": "", "score": 0.2}],
		"people": ["Sam", ""],
		"places": ["harbor"],
		"sentiment": {"label": "Positive", "score": 0.8},
		"memory_chunks": ["lunch {with} Sam"]
	}` + "\n```\nHope that helps."

	a, err := ParseAnalysisResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Lunch with Sam at the harbor.", a.Summary)
	assert.Equal(t, []string{"friendship"}, a.Themes)
	assert.Equal(t, []string{"food"}, a.Topics)
	assert.Equal(t, []types.Emotion{{Name: "joy", Score: 1}}, a.Emotions)
	assert.Equal(t, []string{"Sam"}, a.People)
	assert.Equal(t, []string{"harbor"}, a.Places)
	assert.Equal(t, types.SentimentPositive, a.SentimentLabel)
	assert.Equal(t, 0.8, a.SentimentScore)
	assert.Equal(t, []string{"lunch {with} Sam"}, a.MemoryChunks)
}

func TestParseAnalysisResponse_UnknownSentimentDropped(t *testing.T) {
	a, err := ParseAnalysisResponse(`{"summary":"x","sentiment":{"label":"ecstatic","score":0.9}}`)
	require.NoError(t, err)
	assert.Empty(t, a.SentimentLabel)
	assert.Zero(t, a.SentimentScore)
	assert.Nil(t, a.Themes)
}

func TestParseAnalysisResponse_NotJSON(t *testing.T) {
	_, err := ParseAnalysisResponse("I could not analyze this entry.")
	assert.Error(t, err)
}

func TestAnalyzer_Analyze(t *testing.T) {
	gen := &stubGenerator{reply: `{"summary":"A walk.","topics":["health"]}`}
	a := NewAnalyzer(gen, nil)

	got, err := a.Analyze(context.Background(), "Went for a long walk")
	require.NoError(t, err)
	assert.Equal(t, "A walk.", got.Summary)
	assert.Equal(t, []string{"health"}, got.Topics)
	require.Len(t, gen.prompts, 1)
	assert.True(t, strings.HasSuffix(gen.prompts[0], "Went for a long walk"))
}

func TestAnalyzer_UnparseableDegrades(t *testing.T) {
	a := NewAnalyzer(&stubGenerator{reply: "no json here"}, nil)

	got, err := a.Analyze(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, &types.Analysis{}, got)
}

func TestAnalyzer_GeneratorError(t *testing.T) {
	a := NewAnalyzer(&stubGenerator{err: errors.New("boom")}, nil)

	_, err := a.Analyze(context.Background(), "text")
	assert.Error(t, err)
}

func TestAnswerWriter_PrefersChat(t *testing.T) {
	gen := &stubChat{stubGenerator: stubGenerator{reply: "  You felt calm.  "}}
	w := NewAnswerWriter(gen)

	out, err := w.Generate(context.Background(), GenerateRequest{
		Context: "[Entry m1 | 2024-05-01 | event] Beach day",
		Turns: []types.Turn{
			{Role: types.RoleUser, Content: "How did I feel?"},
			{Role: "tool", Content: "ignored"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "You felt calm.", out)
	require.Len(t, gen.messages, 3)
	assert.Equal(t, AnswerSystemPrompt, gen.messages[0].Content)
	assert.Equal(t, "Relevant entries:\n[Entry m1 | 2024-05-01 | event] Beach day", gen.messages[1].Content)
	assert.Equal(t, RoleUser, gen.messages[2].Role)
	assert.Empty(t, gen.prompts)
}

func TestAnswerWriter_FallsBackToPrompt(t *testing.T) {
	gen := &stubGenerator{reply: "answer"}
	w := NewAnswerWriter(gen)

	_, err := w.Generate(context.Background(), GenerateRequest{
		Context: "ctx",
		Turns: []types.Turn{
			{Role: types.RoleUser, Content: "first"},
			{Role: types.RoleAssistant, Content: "reply"},
			{Role: types.RoleUser, Content: "second"},
		},
	})
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Contains(t, p, "ONLY the provided journal entries")
	assert.Contains(t, p, "User: first\nAssistant: reply\nUser: second\n")
	assert.True(t, strings.HasSuffix(p, "Assistant:"))
}
