package engine

import (
	"context"

	"github.com/scrypster/recall/internal/events"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Transcriber converts captured audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Analyzer extracts structured analysis from a memory's text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*types.Analysis, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Classifier assigns a memory type to text. It must not block.
type Classifier interface {
	Classify(text string) types.MemoryType
}

// AnswerGenerator writes a grounded answer from context and conversation turns.
type AnswerGenerator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Prompter writes a reflection question to prompt a new memory.
type Prompter interface {
	DailyPrompt(ctx context.Context) (string, error)
}

// CandidateSource returns the user's eligible memories most similar to query.
type CandidateSource interface {
	Candidates(ctx context.Context, userID string, query []float32, limit int) ([]storage.Candidate, error)
}

// HistoryStore keeps bounded conversation history per user.
type HistoryStore interface {
	History(ctx context.Context, userID string) ([]types.Turn, error)
	Append(ctx context.Context, userID string, turns ...types.Turn) error
}

// Notifier receives lifecycle events. It must not block for long.
type Notifier interface {
	Notify(ctx context.Context, e events.Event)
}

// modeler is implemented by embedders that report their model name.
type modeler interface {
	GetModel() string
}

// Dependencies are the engine's collaborators. Transcriber may be nil when no
// speech provider is configured; audio captures then fail at transcription.
type Dependencies struct {
	Transcriber Transcriber
	Analyzer    Analyzer
	Embedder    Embedder
	Classifier  Classifier
	Answerer    AnswerGenerator

	// Prompter is optional; DailyPrompt reports retrieval unavailable without it.
	Prompter Prompter

	// Candidates defaults to the record store.
	Candidates CandidateSource

	// History defaults to an in-process store.
	History HistoryStore

	// Notifier is optional.
	Notifier Notifier
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, events.Event) {}
