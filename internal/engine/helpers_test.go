package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/pkg/types"
)

const testUser = "alice"

// stubEmbedder maps exact texts to vectors; unknown texts get fallback.
type stubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error

	// gate, when set, blocks embedding of gated texts until closed.
	gate  chan struct{}
	gated map[string]bool
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors:  make(map[string][]float32),
		fallback: []float32{0, 1},
		gated:    make(map[string]bool),
	}
}

func (s *stubEmbedder) set(text string, vec ...float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[text] = vec
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	vec, ok := s.vectors[text]
	gated := s.gated[text]
	gate := s.gate
	err := s.err
	s.mu.Unlock()

	if gated && gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		vec = s.fallback
	}
	return append([]float32(nil), vec...), nil
}

func (s *stubEmbedder) GetModel() string { return "stub-embed" }

// similarTo returns a unit 2d vector whose cosine with (1,0) is sim.
func similarTo(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

type stubAnalyzer struct {
	mu       sync.Mutex
	analysis types.Analysis
	err      error
	block    chan struct{}
}

func (s *stubAnalyzer) Analyze(ctx context.Context, text string) (*types.Analysis, error) {
	s.mu.Lock()
	block, err, a := s.block, s.err, s.analysis
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("no audio")
	}
	return s.text, s.err
}

type stubAnswerer struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests []llm.GenerateRequest
}

func (s *stubAnswerer) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.answer, s.err
}

func (s *stubAnswerer) last() llm.GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type fixture struct {
	engine   *MemoryEngine
	store    *sqlite.MemoryStore
	embedder *stubEmbedder
	analyzer *stubAnalyzer
	answerer *stubAnswerer
}

type fixtureOption func(*Config, *Dependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		embedder: newStubEmbedder(),
		analyzer: &stubAnalyzer{},
		answerer: &stubAnswerer{answer: "You went hiking."},
	}
	f.embedder.set("question", 1, 0)

	cfg := DefaultConfig()
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.StepTimeout = 2 * time.Second
	deps := Dependencies{
		Transcriber: &stubTranscriber{text: "transcribed words"},
		Analyzer:    f.analyzer,
		Embedder:    f.embedder,
		Answerer:    f.answerer,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	e, err := NewMemoryEngine(store, deps, cfg, config.DefaultRanking(), nil)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	f.engine = e
	return f
}

func (f *fixture) ingest(t *testing.T, text string) *types.Memory {
	t.Helper()
	m, err := f.engine.Ingest(context.Background(), types.Capture{UserID: testUser, Text: text})
	require.NoError(t, err)
	return m
}

// ingestCompleted ingests text embedded as vec and waits for completion.
func (f *fixture) ingestCompleted(t *testing.T, text string, vec []float32) *types.Memory {
	t.Helper()
	f.embedder.set(text, vec...)
	m := f.ingest(t, text)
	return f.waitFor(t, m.ID, types.StatusCompleted)
}

func (f *fixture) waitFor(t *testing.T, id string, status types.ProcessingStatus) *types.Memory {
	t.Helper()
	var got *types.Memory
	require.Eventually(t, func() bool {
		m, err := f.engine.Get(context.Background(), testUser, id)
		if err != nil {
			return false
		}
		got = m
		return m.Status == status
	}, 5*time.Second, 5*time.Millisecond, "memory %s never reached %s", id, status)
	return got
}
