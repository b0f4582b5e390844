package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/pkg/types"
)

func TestNewMemoryEngine_RequiresCollaborators(t *testing.T) {
	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = NewMemoryEngine(nil, Dependencies{}, DefaultConfig(), config.DefaultRanking(), nil)
	assert.Error(t, err)

	_, err = NewMemoryEngine(store, Dependencies{}, DefaultConfig(), config.DefaultRanking(), nil)
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.Workers = 0
	_, err = NewMemoryEngine(store, Dependencies{
		Analyzer: &stubAnalyzer{},
		Embedder: newStubEmbedder(),
		Answerer: &stubAnswerer{},
	}, bad, config.DefaultRanking(), nil)
	assert.Error(t, err)
}

func TestIngest_NotStarted(t *testing.T) {
	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	e, err := NewMemoryEngine(store, Dependencies{
		Analyzer: &stubAnalyzer{},
		Embedder: newStubEmbedder(),
		Answerer: &stubAnswerer{},
	}, DefaultConfig(), config.DefaultRanking(), nil)
	require.NoError(t, err)

	_, err = e.Ingest(context.Background(), types.Capture{UserID: testUser, Text: "x"})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestIngest_TypedCaptureCompletes(t *testing.T) {
	f := newFixture(t)
	f.embedder.set("I love hiking in the hills", 3, 4)

	m := f.ingest(t, "I love hiking in the hills")
	assert.Equal(t, types.StatusPending, m.Status)
	assert.Equal(t, types.SourceTyped, m.Source)
	assert.Equal(t, 0.95, m.ConfidenceScore)
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)
	assert.NotEmpty(t, m.ID)

	got := f.waitFor(t, m.ID, types.StatusCompleted)
	assert.True(t, got.EligibleForRetrieval())
	assert.Equal(t, types.MemoryTypePreference, got.MemoryType)
	assert.Equal(t, 6, got.WordCount)
	assert.Equal(t, "stub-embed", got.EmbeddingModel)
	require.Len(t, got.Embedding, 2)
	assert.InDelta(t, 0.6, got.Embedding[0], 1e-6)
	assert.InDelta(t, 0.8, got.Embedding[1], 1e-6)
}

func TestIngest_AssertedTypeAndConfidenceKept(t *testing.T) {
	f := newFixture(t)
	conf := 0.5

	m, err := f.engine.Ingest(context.Background(), types.Capture{
		UserID:     testUser,
		Text:       "I love the new roadmap",
		MemoryType: types.MemoryTypeProject,
		Source:     types.SourceExternal,
		Confidence: &conf,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SourceExternal, m.Source)
	assert.Equal(t, 0.5, m.ConfidenceScore)

	got := f.waitFor(t, m.ID, types.StatusCompleted)
	assert.Equal(t, types.MemoryTypeProject, got.MemoryType)
}

func TestIngest_AudioCaptureIsTranscribed(t *testing.T) {
	f := newFixture(t)

	m, err := f.engine.Ingest(context.Background(), types.Capture{
		UserID:    testUser,
		Audio:     []byte("RIFF....WAVE"),
		AudioMIME: "audio/wav",
	})
	require.NoError(t, err)
	assert.Equal(t, types.SourceVoice, m.Source)
	assert.Equal(t, 0.85, m.ConfidenceScore)

	got := f.waitFor(t, m.ID, types.StatusCompleted)
	assert.Equal(t, "transcribed words", got.Content)

	_, _, err = f.store.LoadAudio(context.Background(), m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "audio is discarded once transcribed")
}

func TestIngest_AudioWithoutTranscriberFails(t *testing.T) {
	f := newFixture(t, func(_ *Config, d *Dependencies) { d.Transcriber = nil })

	m, err := f.engine.Ingest(context.Background(), types.Capture{UserID: testUser, Audio: []byte{1, 2, 3}})
	require.NoError(t, err)

	got := f.waitFor(t, m.ID, types.StatusFailed)
	assert.Equal(t, "transcribing: no transcriber configured", got.FailureReason)
}

func TestIngest_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tooHigh, negative := 1.5, -0.1

	cases := []struct {
		name    string
		capture types.Capture
	}{
		{"no user", types.Capture{Text: "x"}},
		{"blank text", types.Capture{UserID: testUser, Text: "   "}},
		{"confidence above one", types.Capture{UserID: testUser, Text: "x", Confidence: &tooHigh}},
		{"negative confidence", types.Capture{UserID: testUser, Text: "x", Confidence: &negative}},
		{"unknown type", types.Capture{UserID: testUser, Text: "x", MemoryType: "dream"}},
		{"unknown source", types.Capture{UserID: testUser, Text: "x", Source: "telepathy"}},
		{"future created_at", types.Capture{UserID: testUser, Text: "x", CreatedAt: time.Now().Add(24 * time.Hour)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Ingest(ctx, tc.capture)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestIngest_BackdatedCapture(t *testing.T) {
	f := newFixture(t)
	written := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	m, err := f.engine.Ingest(context.Background(), types.Capture{
		UserID:    testUser,
		Text:      "Imported note",
		Source:    types.SourceExternal,
		CreatedAt: written,
	})
	require.NoError(t, err)

	assert.True(t, m.UpdatedAt.Equal(m.CreatedAt))

	// Processing does not count as an update, so recency follows the note date.
	got := f.waitFor(t, m.ID, types.StatusCompleted)
	assert.True(t, got.CreatedAt.Equal(written))
	assert.True(t, got.UpdatedAt.Equal(written))
	rc := config.DefaultRanking()
	assert.Less(t, Recency(time.Now(), got.UpdatedAt, rc.HalfLifeFor(string(got.MemoryType))), 0.01)

	confirmed, err := f.engine.Confirm(context.Background(), testUser, m.ID, nil)
	require.NoError(t, err)
	assert.True(t, confirmed.UpdatedAt.After(written))
}

func TestIngest_StepFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.analyzer.err = errors.New("model offline")

	m := f.ingest(t, "Dinner with friends")
	got := f.waitFor(t, m.ID, types.StatusFailed)
	assert.Equal(t, "analyzing: model offline", got.FailureReason)
	assert.False(t, got.EligibleForRetrieval())

	_, err := f.engine.Query(context.Background(), testUser, "question")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIngest_QueueFullMarksFailed(t *testing.T) {
	block := make(chan struct{})
	f := newFixture(t, func(c *Config, _ *Dependencies) {
		c.Workers = 1
		c.QueueSize = 1
	})
	f.analyzer.block = block
	t.Cleanup(func() { close(block) })

	first := f.ingest(t, "first")
	f.waitFor(t, first.ID, types.StatusAnalyzing)

	f.ingest(t, "second")

	third, err := f.engine.Ingest(context.Background(), types.Capture{UserID: testUser, Text: "third"})
	require.ErrorIs(t, err, ErrIngestionFailure)
	require.NotNil(t, third)
	assert.Equal(t, types.StatusFailed, third.Status)
	assert.Equal(t, "ingestion queue full", third.FailureReason)

	stored, err := f.engine.Get(context.Background(), testUser, third.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
}

func TestEnqueue_SupersededWhileWaitingReleasesSuccessor(t *testing.T) {
	block := make(chan struct{})
	f := newFixture(t, func(c *Config, _ *Dependencies) {
		c.Workers = 1
		c.QueueSize = 1
	})
	f.analyzer.block = block
	t.Cleanup(func() { close(block) })

	busy := f.ingest(t, "busy")
	f.waitFor(t, busy.ID, types.StatusAnalyzing)
	f.ingest(t, "queued")

	stale := f.engine.newJob("m-recovered", testUser, 0, types.StatusPending)
	enqueued := make(chan error, 1)
	go func() { enqueued <- f.engine.enqueue(f.engine.workerCtx, stale) }()

	require.Eventually(t, func() bool {
		f.engine.inflightMu.Lock()
		defer f.engine.inflightMu.Unlock()
		return f.engine.inflight["m-recovered"] == stale
	}, time.Second, time.Millisecond)

	newer := f.engine.newJob("m-recovered", testUser, 1, types.StatusPending)
	require.True(t, f.engine.track(f.engine.workerCtx, newer))

	select {
	case err := <-enqueued:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded job still waiting for queue room")
	}
	select {
	case <-newer.prev:
	default:
		t.Fatal("successor still waiting on its predecessor")
	}
	assert.Equal(t, 1, len(f.engine.ingestQueue), "stale job must not be queued")
	f.engine.finish(newer)
}

func TestGet_OtherUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	m := f.ingest(t, "private")

	_, err := f.engine.Get(context.Background(), "bob", m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_FiltersByStatus(t *testing.T) {
	f := newFixture(t)
	f.ingestCompleted(t, "one", similarTo(0.5))
	f.analyzer.err = errors.New("boom")
	bad := f.ingest(t, "two")
	f.waitFor(t, bad.ID, types.StatusFailed)

	res, err := f.engine.List(context.Background(), testUser, storage.ListOptions{Status: types.StatusFailed})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, bad.ID, res.Items[0].ID)
	assert.Equal(t, 1, res.Total)
}

func TestRecoverNonTerminal_ResumesFromPersistedStatus(t *testing.T) {
	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	pending := &types.Memory{ID: "m-pending", UserID: testUser, Content: "left pending", Source: types.SourceTyped}
	analyzing := &types.Memory{ID: "m-analyzing", UserID: testUser, Content: "left analyzing", Source: types.SourceTyped}
	require.NoError(t, store.Create(ctx, pending, nil, ""))
	require.NoError(t, store.Create(ctx, analyzing, nil, ""))
	require.NoError(t, store.AdvanceStatus(ctx, analyzing.ID, storage.Condition{Status: types.StatusPending}, types.StatusTranscribing))
	require.NoError(t, store.AdvanceStatus(ctx, analyzing.ID, storage.Condition{Status: types.StatusTranscribing}, types.StatusAnalyzing))

	cfg := DefaultConfig()
	cfg.RecoveryBatchSize = 1
	e, err := NewMemoryEngine(store, Dependencies{
		Analyzer: &stubAnalyzer{},
		Embedder: newStubEmbedder(),
		Answerer: &stubAnswerer{},
	}, cfg, config.DefaultRanking(), nil)
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx))
	defer e.Shutdown(ctx)

	for _, id := range []string{pending.ID, analyzing.ID} {
		require.Eventually(t, func() bool {
			m, err := e.Get(ctx, testUser, id)
			return err == nil && m.Status == types.StatusCompleted
		}, 5*time.Second, 5*time.Millisecond, id)
	}
}

func TestStartShutdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Error(t, f.engine.Start(ctx), "double start")
	require.NoError(t, f.engine.Shutdown(ctx))
	assert.Error(t, f.engine.Shutdown(ctx), "double shutdown")

	_, err := f.engine.Ingest(ctx, types.Capture{UserID: testUser, Text: "late"})
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, f.engine.Start(ctx))
	m := f.ingest(t, "after restart")
	f.waitFor(t, m.ID, types.StatusCompleted)
}

func TestSetRanking_RejectsInvalid(t *testing.T) {
	f := newFixture(t)

	rc := config.DefaultRanking()
	rc.Weights.Similarity = -1
	assert.Error(t, f.engine.SetRanking(rc))
	assert.Equal(t, 0.6, f.engine.Ranking().Weights.Similarity)

	rc = config.DefaultRanking()
	rc.MaxContext = 3
	require.NoError(t, f.engine.SetRanking(rc))
	assert.Equal(t, 3, f.engine.Ranking().MaxContext)
}

func TestEmbeddingIsNormalized(t *testing.T) {
	f := newFixture(t)
	m := f.ingestCompleted(t, "long vector", []float32{10, 0, 0})

	var norm float64
	for _, x := range m.Embedding {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-6)
}
