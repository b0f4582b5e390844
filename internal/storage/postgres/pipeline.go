package postgres

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
		UPDATE memories SET processing_status = $1
		WHERE id = $2 AND processing_status = $3 AND generation = $4`,
		string(to), id, string(cond.Status), cond.Generation)
	if err != nil {
		return fmt.Errorf("postgres: failed to advance status: %w", err)
	}
	return conditionalResult(ctx, s.db, res, id)
}

// SaveTranscript writes the transcribed body, moves the memory to analyzing
// and discards the stored audio.
func (s *MemoryStore) SaveTranscript(ctx context.Context, id string, cond storage.Condition, text string) error {
	if cond.Status != types.StatusTranscribing {
		return fmt.Errorf("%w: transcript can only be saved while transcribing", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE memories SET content = $1, word_count = $2, processing_status = $3
		WHERE id = $4 AND processing_status = $5 AND generation = $6`,
		text, types.CountWords(text), string(types.StatusAnalyzing),
		id, string(cond.Status), cond.Generation)
	if err != nil {
		return fmt.Errorf("postgres: failed to save transcript: %w", err)
	}
	if err := conditionalResult(ctx, tx, res, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM capture_audio WHERE memory_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: failed to discard audio: %w", err)
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
			summary = $1, themes = $2, emotions = $3, topics = $4, people = $5, places = $6,
			memory_chunks = $7, word_count = $8, sentiment_label = $9, sentiment_score = $10,
			memory_type = COALESCE(NULLIF(memory_type, ''), $11),
			processing_status = $12
		WHERE id = $13 AND processing_status = $14 AND generation = $15`,
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
		string(memoryType),
		string(types.StatusEmbedding),
		id, string(cond.Status), cond.Generation,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save analysis: %w", err)
	}
	return conditionalResult(ctx, s.db, res, id)
}

// CompleteEmbedding writes the embedding and status completed in one statement.
func (s *MemoryStore) CompleteEmbedding(ctx context.Context, id string, cond storage.Condition, embedding []float32, model string) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding is empty", storage.ErrInvalidInput)
	}
	if cond.Status != types.StatusEmbedding {
		return fmt.Errorf("%w: embedding can only be completed from embedding", storage.ErrInvalidInput)
	}

	var (
		res sql.Result
		err error
	)
	if s.pgvectorAvailable {
		res, err = s.db.ExecContext(ctx, `
			UPDATE memories SET embedding = $1, embedding_vec = $2, embedding_model = $3,
				processing_status = $4, failure_reason = NULL
			WHERE id = $5 AND processing_status = $6 AND generation = $7`,
			float32Array(embedding), vectorValue(embedding), nullableString(model),
			string(types.StatusCompleted), id, string(cond.Status), cond.Generation)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE memories SET embedding = $1, embedding_model = $2,
				processing_status = $3, failure_reason = NULL
			WHERE id = $4 AND processing_status = $5 AND generation = $6`,
			float32Array(embedding), nullableString(model),
			string(types.StatusCompleted), id, string(cond.Status), cond.Generation)
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to complete embedding: %w", err)
	}
	return conditionalResult(ctx, s.db, res, id)
}

// MarkFailed moves a memory to failed with the given reason.
func (s *MemoryStore) MarkFailed(ctx context.Context, id string, cond storage.Condition, reason string) error {
	if !types.IsValidStatusTransition(cond.Status, types.StatusFailed) {
		return fmt.Errorf("%w: cannot fail a memory in status %s", storage.ErrInvalidInput, cond.Status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET processing_status = $1, failure_reason = $2
		WHERE id = $3 AND processing_status = $4 AND generation = $5`,
		string(types.StatusFailed), reason, id, string(cond.Status), cond.Generation)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark memory failed: %w", err)
	}
	return conditionalResult(ctx, s.db, res, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func conditionalResult(ctx context.Context, q queryer, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM memories WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: failed to check existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrSuperseded
}

func now() time.Time {
	return time.Now().UTC()
}
