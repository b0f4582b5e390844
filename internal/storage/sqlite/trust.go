package sqlite

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
		SET confidence_score = MIN(confidence_score + ?, ?), last_confirmed_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		boost, ceiling, at.UTC(), at.UTC(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm memory: %w", err)
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
		UPDATE memories SET is_flagged = ?, flag_reason = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		flagged, nullableString(reason), at.UTC(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to set flag: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// ApplyEdit applies user edits and adjusts pipeline state when the embedded
// text changes.
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
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status types.ProcessingStatus
	var content string
	var title sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT processing_status, content, title FROM memories WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&status, &content, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load memory for edit: %w", err)
	}

	before := types.Memory{Title: title.String, Content: content}
	after := before
	if edit.Title != nil {
		after.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Content != nil {
		after.Content = *edit.Content
	}
	changed := before.Text() != after.Text()

	sets := []string{"updated_at = ?"}
	args := []interface{}{at.UTC()}
	if edit.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, nullableString(after.Title))
	}
	if edit.Content != nil {
		sets = append(sets, "content = ?", "word_count = ?")
		args = append(args, after.Content, types.CountWords(after.Content))
	}
	if edit.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, nullableString(strings.TrimSpace(*edit.Summary)))
	}
	if edit.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, jsonList(types.NormalizeTags(*edit.Tags)))
	}
	if edit.MemoryType != nil {
		sets = append(sets, "memory_type = ?")
		args = append(args, *edit.MemoryType)
	}
	if edit.People != nil {
		sets = append(sets, "people = ?")
		args = append(args, jsonList(*edit.People))
	}
	if edit.Places != nil {
		sets = append(sets, "places = ?")
		args = append(args, jsonList(*edit.Places))
	}

	requeue := false
	if changed {
		switch {
		case types.CanReenterForReembed(status):
			sets = append(sets,
				"embedding = NULL", "embedding_model = NULL",
				"processing_status = ?", "generation = generation + 1")
			args = append(args, types.StatusEmbedding)
			requeue = true
		case !status.IsTerminal():
			sets = append(sets, "generation = generation + 1")
			requeue = true
		}
	}

	args = append(args, id, userID)
	if _, err := tx.ExecContext(ctx,
		"UPDATE memories SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...); err != nil {
		return nil, fmt.Errorf("failed to apply edit: %w", err)
	}

	// User-supplied text replaces pending audio; the transcribing step then
	// passes through.
	if changed && edit.Content != nil && (status == types.StatusPending || status == types.StatusTranscribing) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM capture_audio WHERE memory_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to discard audio: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit edit: %w", err)
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
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
