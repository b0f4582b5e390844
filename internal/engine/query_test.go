package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

func TestQuery_RanksBySimilarity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	low := f.ingestCompleted(t, "low match", similarTo(0.2))
	high := f.ingestCompleted(t, "high match", similarTo(0.9))
	mid := f.ingestCompleted(t, "mid match", similarTo(0.5))

	res, err := f.engine.Query(ctx, testUser, "question")
	require.NoError(t, err)
	assert.Equal(t, "You went hiking.", res.Answer)
	assert.Equal(t, []string{high.ID, mid.ID, low.ID}, res.UsedIDs)
	require.Len(t, res.Scored, 3)
	assert.InDelta(t, 0.9, res.Scored[0].Similarity, 1e-6)

	req := f.answerer.last()
	assert.True(t, strings.HasPrefix(req.Context, "[Entry "+high.ID+" | "))
	require.Len(t, req.Turns, 1)
	assert.Equal(t, types.Turn{Role: types.RoleUser, Content: "question"}, req.Turns[0])
}

func TestQuery_ContextCappedAtMaxContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		f.ingestCompleted(t, "entry "+string(rune('a'+i)), similarTo(0.1*float64(i+1)))
	}

	res, err := f.engine.Query(ctx, testUser, "question")
	require.NoError(t, err)
	assert.Len(t, res.UsedIDs, 6)
	assert.Len(t, res.Scored, 6)

	rc := config.DefaultRanking()
	rc.MaxContext = 2
	require.NoError(t, f.engine.SetRanking(rc))
	res, err = f.engine.Query(ctx, testUser, "question")
	require.NoError(t, err)
	assert.Len(t, res.UsedIDs, 2)
}

func TestQuery_OnlyOwnMemories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestCompleted(t, "alice's note", similarTo(0.9))

	_, err := f.engine.Query(ctx, "bob", "question")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuery_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Query(ctx, testUser, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.Query(ctx, testUser, "question")
	assert.ErrorIs(t, err, ErrNotFound, "no memories yet")

	f.ingestCompleted(t, "something", similarTo(0.9))

	f.answerer.mu.Lock()
	f.answerer.answer = "   "
	f.answerer.mu.Unlock()
	_, err = f.engine.Query(ctx, testUser, "question")
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)

	f.answerer.mu.Lock()
	f.answerer.err = errors.New("model down")
	f.answerer.mu.Unlock()
	_, err = f.engine.Query(ctx, testUser, "question")
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)

	f.embedder.mu.Lock()
	f.embedder.err = errors.New("embedder down")
	f.embedder.mu.Unlock()
	_, err = f.engine.Query(ctx, testUser, "question")
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}

func TestQuery_EmbeddingMemoryNeverReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.ingestCompleted(t, "done", similarTo(0.3))

	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	f.embedder.mu.Lock()
	f.embedder.gate = gate
	f.embedder.gated["in progress"] = true
	f.embedder.vectors["in progress"] = similarTo(0.99)
	f.embedder.mu.Unlock()

	pending := f.ingest(t, "in progress")
	f.waitFor(t, pending.ID, types.StatusEmbedding)

	for i := 0; i < 100; i++ {
		res, err := f.engine.Query(ctx, testUser, "question")
		require.NoError(t, err)
		require.Equal(t, []string{done.ID}, res.UsedIDs, "query %d", i)
	}
}

func TestConverse_UsesAndStoresHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestCompleted(t, "Went hiking on Saturday", similarTo(0.9))
	f.embedder.set("And on Sunday?", 1, 0)

	res, err := f.engine.Converse(ctx, testUser, []types.Turn{{Role: types.RoleUser, Content: "question"}})
	require.NoError(t, err)
	assert.Len(t, res.UsedIDs, 1)

	_, err = f.engine.Converse(ctx, testUser, []types.Turn{{Role: types.RoleUser, Content: "And on Sunday?"}})
	require.NoError(t, err)

	req := f.answerer.last()
	require.Len(t, req.Turns, 3)
	assert.Equal(t, "question", req.Turns[0].Content)
	assert.Equal(t, types.RoleAssistant, req.Turns[1].Role)
	assert.Equal(t, "And on Sunday?", req.Turns[2].Content)
}

func TestConverse_CallerHistoryCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestCompleted(t, "a note", similarTo(0.9))

	var turns []types.Turn
	for i := 0; i < 30; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		turns = append(turns, types.Turn{Role: role, Content: "turn"})
	}
	turns = append(turns, types.Turn{Role: types.RoleUser, Content: "question"})

	_, err := f.engine.Converse(ctx, testUser, turns)
	require.NoError(t, err)
	req := f.answerer.last()
	assert.Len(t, req.Turns, 20)
	assert.Equal(t, "question", req.Turns[19].Content)
}

func TestConverse_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string][]types.Turn{
		"empty":          nil,
		"assistant last": {{Role: types.RoleUser, Content: "hi"}, {Role: types.RoleAssistant, Content: "hello"}},
		"blank question": {{Role: types.RoleUser, Content: "  "}},
		"unknown role":   {{Role: "system", Content: "x"}, {Role: types.RoleUser, Content: "hi"}},
	}
	for name, turns := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Converse(ctx, testUser, turns)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestInsights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("word ", 60)
	short := f.ingestCompleted(t, "short entry here", similarTo(0.5))
	longMem := f.ingestCompleted(t, strings.TrimSpace(long), similarTo(0.4))

	previews, err := f.engine.Previews(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, previews, 2)

	byID := map[string]Preview{}
	for _, p := range previews {
		byID[p.ID] = p
	}
	assert.Equal(t, "short entry here", byID[short.ID].Preview)
	lp := byID[longMem.ID].Preview
	assert.Equal(t, 160, len([]rune(lp)))
	assert.True(t, strings.HasSuffix(lp, "..."))

	summary, err := f.engine.Summary(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalEntries)
	assert.Equal(t, 63, summary.TotalWords)
	require.Len(t, summary.EntriesPerDay, 1)
	assert.Equal(t, 2, summary.EntriesPerDay[0].Count)

	empty, err := f.engine.Summary(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalEntries)
	assert.Empty(t, empty.EntriesPerDay)
}

type stubPrompter struct {
	prompt string
	err    error
}

func (s stubPrompter) DailyPrompt(context.Context) (string, error) { return s.prompt, s.err }

func TestDailyPrompt(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, func(_ *Config, d *Dependencies) {
		d.Prompter = stubPrompter{prompt: " What song takes you back to being twelve? "}
	})
	got, err := f.engine.DailyPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "What song takes you back to being twelve?", got)

	tests := []struct {
		name     string
		prompter Prompter
	}{
		{"not configured", nil},
		{"generator error", stubPrompter{err: errors.New("offline")}},
		{"empty output", stubPrompter{prompt: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(_ *Config, d *Dependencies) { d.Prompter = tt.prompter })
			_, err := f.engine.DailyPrompt(ctx)
			assert.ErrorIs(t, err, ErrRetrievalUnavailable)
		})
	}
}
