package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// AdvanceStatus moves a memory from cond.Status to `to` without other writes.
func (s *MemoryStore) AdvanceStatus(ctx context.Context, id string, cond storage.Condition, to types.ProcessingStatus) error {
	if !types.IsValidStatusTransition(cond.Status, to) {
		return fmt.Errorf("%w: invalid status transition %s -> %s", storage.ErrInvalidInput, cond.Status, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET processing_status = ?
		WHERE id = ? AND processing_status = ? AND generation = ?`,
		to, id, cond.Status, cond.Generation)
	if err != nil {
		return fmt.Errorf("failed to advance status: %w", err)
	}
	return s.conditionalResult(ctx, s.db, res, id)
}

// SaveTranscript writes the transcribed body, moves the memory to analyzing
// and discards the stored audio.
func (s *MemoryStore) SaveTranscript(ctx context.Context, id string, cond storage.Condition, text string) error {
	if cond.Status != types.StatusTranscribing {
		return fmt.Errorf("%w: transcript can only be saved while transcribing", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE memories SET content = ?, word_count = ?, processing_status = ?
		WHERE id = ? AND processing_status = ? AND generation = ?`,
		text, types.CountWords(text), types.StatusAnalyzing,
		id, cond.Status, cond.Generation)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	if err := s.conditionalResult(ctx, tx, res, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM capture_audio WHERE memory_id = ?`, id); err != nil {
		return fmt.Errorf("failed to discard audio: %w", err)
	}

	return tx.Commit()
}

// SaveAnalysis writes analysis fields and moves the memory to embedding.
// memoryType is written only when the memory has no user-asserted type.
func (s *MemoryStore) SaveAnalysis(ctx context.Context, id string, cond storage.Condition, a *types.Analysis, memoryType types.MemoryType) error {
	if a == nil {
		return fmt.Errorf("%w: analysis is required", storage.ErrInvalidInput)
	}
	if cond.Status != types.StatusAnalyzing {
		return fmt.Errorf("%w: analysis can only be saved while analyzing", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			summary = ?, themes = ?, emotions = ?, topics = ?, people = ?, places = ?,
			memory_chunks = ?, word_count = ?, sentiment_label = ?, sentiment_score = ?,
			memory_type = CASE WHEN memory_type IS NULL OR memory_type = '' THEN ? ELSE memory_type END,
			processing_status = ?
		WHERE id = ? AND processing_status = ? AND generation = ?`,
		nullableString(a.Summary),
		jsonList(a.Themes),
		jsonList(a.Emotions),
		jsonList(a.Topics),
		jsonList(a.People),
		jsonList(a.Places),
		jsonList(a.MemoryChunks),
		a.WordCount,
		nullableString(a.SentimentLabel),
		a.SentimentScore,
		memoryType,
		types.StatusEmbedding,
		id, cond.Status, cond.Generation,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return s.conditionalResult(ctx, s.db, res, id)
}

// CompleteEmbedding writes the embedding and status completed in one statement,
// so no reader can observe one without the other.
func (s *MemoryStore) CompleteEmbedding(ctx context.Context, id string, cond storage.Condition, embedding []float32, model string) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding is empty", storage.ErrInvalidInput)
	}
	if cond.Status != types.StatusEmbedding {
		return fmt.Errorf("%w: embedding can only be completed from embedding", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET embedding = ?, embedding_model = ?, processing_status = ?,
			failure_reason = NULL
		WHERE id = ? AND processing_status = ? AND generation = ?`,
		encodeEmbedding(embedding), nullableString(model), types.StatusCompleted,
		id, cond.Status, cond.Generation)
	if err != nil {
		return fmt.Errorf("failed to complete embedding: %w", err)
	}
	return s.conditionalResult(ctx, s.db, res, id)
}

// MarkFailed moves a memory to failed with the given reason.
func (s *MemoryStore) MarkFailed(ctx context.Context, id string, cond storage.Condition, reason string) error {
	if !types.IsValidStatusTransition(cond.Status, types.StatusFailed) {
		return fmt.Errorf("%w: cannot fail a memory in status %s", storage.ErrInvalidInput, cond.Status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET processing_status = ?, failure_reason = ?
		WHERE id = ? AND processing_status = ? AND generation = ?`,
		types.StatusFailed, reason, id, cond.Status, cond.Generation)
	if err != nil {
		return fmt.Errorf("failed to mark memory failed: %w", err)
	}
	return s.conditionalResult(ctx, s.db, res, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conditionalResult turns a zero-row conditional update into ErrNotFound when
// the memory is gone and ErrSuperseded otherwise.
func (s *MemoryStore) conditionalResult(ctx context.Context, q queryer, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check existence: %w", err)
	}
	if exists == 0 {
		return storage.ErrNotFound
	}
	return storage.ErrSuperseded
}

func now() time.Time {
	return time.Now().UTC()
}
