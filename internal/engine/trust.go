package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/recall/internal/events"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// EditFields carries user edits. Nil fields are left unchanged.
type EditFields struct {
	Title      *string
	Content    *string
	Summary    *string
	Tags       *[]string
	MemoryType *string
	People     *[]string
	Places     *[]string
}

// Confirm raises a memory's confidence by boost (the profile's ConfirmBoost
// when nil), saturating at the confidence ceiling.
func (e *MemoryEngine) Confirm(ctx context.Context, userID, memoryID string, boost *float64) (*types.Memory, error) {
	rc := e.ranking.Load()
	b := rc.ConfirmBoost
	if boost != nil {
		if *boost < 0 || *boost > 1 {
			return nil, validationf("boost must be within [0,1], got %v", *boost)
		}
		b = *boost
	}

	m, err := e.memoryStore.Confirm(ctx, userID, memoryID, b, rc.ConfidenceCeiling, e.now())
	if err != nil {
		return nil, mapStoreError(err)
	}

	e.deps.Notifier.Notify(ctx, events.Event{
		Type:     events.TypeMemoryConfirmed,
		UserID:   userID,
		MemoryID: memoryID,
		Status:   m.Status,
	})
	return m, nil
}

// Flag marks a memory as wrong. Flagged memories never ground an answer.
func (e *MemoryEngine) Flag(ctx context.Context, userID, memoryID, reason string) (*types.Memory, error) {
	return e.setFlag(ctx, userID, memoryID, true, reason)
}

// Unflag clears the flag and its reason.
func (e *MemoryEngine) Unflag(ctx context.Context, userID, memoryID string) (*types.Memory, error) {
	return e.setFlag(ctx, userID, memoryID, false, "")
}

func (e *MemoryEngine) setFlag(ctx context.Context, userID, memoryID string, flagged bool, reason string) (*types.Memory, error) {
	m, err := e.memoryStore.SetFlag(ctx, userID, memoryID, flagged, strings.TrimSpace(reason), e.now())
	if err != nil {
		return nil, mapStoreError(err)
	}

	e.deps.Notifier.Notify(ctx, events.Event{
		Type:     events.TypeMemoryFlagged,
		UserID:   userID,
		MemoryID: memoryID,
		Status:   m.Status,
		Reason:   m.FlagReason,
	})
	return m, nil
}

// Edit applies user edits. When the title or body changes, a completed memory
// loses its embedding and is re-embedded, and a memory still in the pipeline
// restarts its current step for the new content. Failed memories stay failed.
func (e *MemoryEngine) Edit(ctx context.Context, userID, memoryID string, fields EditFields) (*types.Memory, error) {
	if fields == (EditFields{}) {
		return nil, validationf("no fields to edit")
	}
	update := storage.EditUpdate{
		Title:   fields.Title,
		Summary: fields.Summary,
		Tags:    fields.Tags,
		People:  fields.People,
		Places:  fields.Places,
		Now:     e.now(),
	}
	if fields.Content != nil {
		content := strings.TrimSpace(*fields.Content)
		if content == "" {
			return nil, validationf("content cannot be empty")
		}
		update.Content = &content
	}
	if fields.MemoryType != nil {
		mt, ok := types.ParseMemoryType(*fields.MemoryType)
		if !ok {
			return nil, validationf("unknown memory type %q", *fields.MemoryType)
		}
		update.MemoryType = &mt
	}

	res, err := e.memoryStore.ApplyEdit(ctx, userID, memoryID, update)
	if err != nil {
		return nil, mapStoreError(err)
	}
	m := res.Memory

	e.deps.Notifier.Notify(ctx, events.Event{
		Type:     events.TypeMemoryEdited,
		UserID:   userID,
		MemoryID: memoryID,
		Status:   m.Status,
	})

	if !res.Requeue {
		return m, nil
	}

	job := e.newJob(m.ID, m.UserID, m.Generation, m.Status)
	if err := e.queueJob(job); err != nil {
		if errors.Is(err, errQueueFull) {
			e.failUnqueued(ctx, m)
			return m, fmt.Errorf("%w: %s", ErrIngestionFailure, reasonQueueFull)
		}
		e.log.Debug("edit not queued, left for recovery", "memory_id", m.ID, "error", err)
	}
	return m, nil
}
