// Package storage provides composable storage interfaces for recall.
//
// Every pipeline write is conditional on the memory's persisted status and
// content generation. A write whose condition no longer holds returns
// ErrSuperseded and changes nothing, so a stale worker can never overwrite
// the result of a newer edit.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// MemoryStore provides the record store operations used by the engine.
// Reads and trust mutations are scoped by user; an id owned by another user
// behaves exactly like an unknown id and returns ErrNotFound.
type MemoryStore interface {
	// Create inserts a new memory. Audio, when non-empty, is kept in a side
	// table until the transcript is saved.
	Create(ctx context.Context, memory *types.Memory, audio []byte, audioMIME string) error

	// Get retrieves a memory owned by userID.
	Get(ctx context.Context, userID, id string) (*types.Memory, error)

	// GetMany retrieves the memories with the given ids that userID owns.
	// Unknown ids are skipped. Order is unspecified.
	GetMany(ctx context.Context, userID string, ids []string) ([]types.Memory, error)

	// List retrieves memories owned by userID with pagination and filtering.
	List(ctx context.Context, userID string, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// Digest returns a lightweight projection of every memory owned by userID,
	// newest first.
	Digest(ctx context.Context, userID string) ([]MemoryDigest, error)

	// LoadAudio returns the stored audio for a memory awaiting transcription.
	LoadAudio(ctx context.Context, id string) ([]byte, string, error)

	// AdvanceStatus moves a memory from cond.Status to `to` without other writes.
	AdvanceStatus(ctx context.Context, id string, cond Condition, to types.ProcessingStatus) error

	// SaveTranscript writes the transcribed body, moves the memory to
	// analyzing and discards the stored audio.
	SaveTranscript(ctx context.Context, id string, cond Condition, text string) error

	// SaveAnalysis writes analysis fields and the memory type and moves the
	// memory to embedding.
	SaveAnalysis(ctx context.Context, id string, cond Condition, analysis *types.Analysis, memoryType types.MemoryType) error

	// CompleteEmbedding writes the embedding and status completed in a single
	// statement.
	CompleteEmbedding(ctx context.Context, id string, cond Condition, embedding []float32, model string) error

	// MarkFailed moves a memory to failed with the given reason.
	MarkFailed(ctx context.Context, id string, cond Condition, reason string) error

	// Confirm atomically raises confidence by boost, capped at ceiling, and
	// records the confirmation time.
	Confirm(ctx context.Context, userID, id string, boost, ceiling float64, now time.Time) (*types.Memory, error)

	// SetFlag sets or clears the flag. Clearing also clears the reason.
	SetFlag(ctx context.Context, userID, id string, flagged bool, reason string, now time.Time) (*types.Memory, error)

	// ApplyEdit applies user edits. See EditUpdate for the re-embed rules.
	ApplyEdit(ctx context.Context, userID, id string, edit EditUpdate) (*EditResult, error)

	// ListNonTerminal pages through memories of every user whose status is
	// not terminal, ordered by id, starting after afterID.
	ListNonTerminal(ctx context.Context, afterID string, limit int) ([]types.Memory, error)

	// ListEligible pages through eligible memories of every user, with
	// embeddings, ordered by id, starting after afterID.
	ListEligible(ctx context.Context, afterID string, limit int) ([]types.Memory, error)

	// Candidates returns up to limit eligible memories owned by userID,
	// ordered by cosine similarity to query (descending), then newer
	// created_at, then id.
	Candidates(ctx context.Context, userID string, query []float32, limit int) ([]Candidate, error)

	// Close releases any resources held by the store.
	Close() error
}

// Condition guards a pipeline write: the write applies only while the
// memory is still at Status and Generation.
type Condition struct {
	Status     types.ProcessingStatus
	Generation int64
}

// EditUpdate carries user edits. Nil pointers leave the field unchanged.
//
// When the content changes the store adjusts the pipeline state in the same
// transaction:
//   - completed or embedding: embedding cleared, status embedding, generation bumped
//   - pending, transcribing or analyzing: generation bumped, status kept
//   - failed: fields updated only
type EditUpdate struct {
	Title      *string
	Content    *string
	Summary    *string
	Tags       *[]string
	MemoryType *types.MemoryType
	People     *[]string
	Places     *[]string
	Now        time.Time
}

// EditResult reports the edited memory and whether pipeline work must be
// (re)queued for it.
type EditResult struct {
	Memory *types.Memory

	// ContentChanged is true when the body text differed from the stored body.
	ContentChanged bool

	// Requeue is true when the edit bumped the generation and a new job must
	// be started from Memory.Status.
	Requeue bool
}
