package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Confirm atomically raises confidence by boost, capped at ceiling.
func (s *MemoryStore) Confirm(ctx context.Context, userID, id string, boost, ceiling float64, at time.Time) (*types.Memory, error) {
	if boost < 0 {
		return nil, fmt.Errorf("%w: boost must be non-negative", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET confidence_score = LEAST(confidence_score + $1, $2), last_confirmed_at = $3, updated_at = $3
		WHERE id = $4 AND user_id = $5`,
		boost, ceiling, at.UTC(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to confirm memory: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// SetFlag sets or clears the flag. Clearing also clears the reason.
func (s *MemoryStore) SetFlag(ctx context.Context, userID, id string, flagged bool, reason string, at time.Time) (*types.Memory, error) {
	reason = strings.TrimSpace(reason)
	if !flagged {
		reason = ""
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET is_flagged = $1, flag_reason = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5`,
		flagged, nullableString(reason), at.UTC(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to set flag: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// ApplyEdit applies user edits and adjusts pipeline state when the embedded
// text changes. The row is locked for the duration of the edit.
func (s *MemoryStore) ApplyEdit(ctx context.Context, userID, id string, edit storage.EditUpdate) (*storage.EditResult, error) {
	if edit.Content != nil && strings.TrimSpace(*edit.Content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", storage.ErrInvalidInput)
	}
	at := edit.Now
	if at.IsZero() {
		at = now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status, content string
	var title sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT processing_status, content, title FROM memories WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		id, userID).Scan(&status, &content, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load memory for edit: %w", err)
	}
	current := types.ProcessingStatus(status)

	before := types.Memory{Title: title.String, Content: content}
	after := before
	if edit.Title != nil {
		after.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Content != nil {
		after.Content = *edit.Content
	}
	changed := before.Text() != after.Text()

	var sets []string
	var args []interface{}
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	set("updated_at", at.UTC())
	if edit.Title != nil {
		set("title", nullableString(after.Title))
	}
	if edit.Content != nil {
		set("content", after.Content)
		set("word_count", types.CountWords(after.Content))
	}
	if edit.Summary != nil {
		set("summary", nullableString(strings.TrimSpace(*edit.Summary)))
	}
	if edit.Tags != nil {
		set("tags", jsonList(types.NormalizeTags(*edit.Tags)))
	}
	if edit.MemoryType != nil {
		set("memory_type", string(*edit.MemoryType))
	}
	if edit.People != nil {
		set("people", jsonList(*edit.People))
	}
	if edit.Places != nil {
		set("places", jsonList(*edit.Places))
	}

	requeue := false
	if changed {
		switch {
		case types.CanReenterForReembed(current):
			sets = append(sets, "embedding = NULL", "embedding_model = NULL", "generation = generation + 1")
			if s.pgvectorAvailable {
				sets = append(sets, "embedding_vec = NULL")
			}
			set("processing_status", string(types.StatusEmbedding))
			requeue = true
		case !current.IsTerminal():
			sets = append(sets, "generation = generation + 1")
			requeue = true
		}
	}

	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d AND user_id = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: failed to apply edit: %w", err)
	}

	if changed && edit.Content != nil && (current == types.StatusPending || current == types.StatusTranscribing) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM capture_audio WHERE memory_id = $1`, id); err != nil {
			return nil, fmt.Errorf("postgres: failed to discard audio: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: failed to commit edit: %w", err)
	}

	m, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &storage.EditResult{Memory: m, ContentChanged: changed, Requeue: requeue}, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
