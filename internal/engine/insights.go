package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// Preview is a short listing entry for a memory.
type Preview struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Preview   string    `json:"preview"`
	Summary   string    `json:"summary,omitempty"`
}

// DayCount is the number of memories created on one UTC date.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Summary aggregates a user's memory history.
type Summary struct {
	TotalEntries  int        `json:"total_entries"`
	TotalWords    int        `json:"total_words"`
	EntriesPerDay []DayCount `json:"entries_per_day"`
}

// Previews lists every memory of the user, newest first.
func (e *MemoryEngine) Previews(ctx context.Context, userID string) ([]Preview, error) {
	digests, err := e.memoryStore.Digest(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	out := make([]Preview, 0, len(digests))
	for _, d := range digests {
		text := strings.TrimSpace(d.Summary)
		if text == "" {
			text = strings.TrimSpace(d.Content)
		}
		out = append(out, Preview{
			ID:        d.ID,
			CreatedAt: d.CreatedAt,
			Preview:   truncateRunes(text, previewRunes, true),
			Summary:   d.Summary,
		})
	}
	return out, nil
}

// Summary counts the user's memories, words and memories per day.
func (e *MemoryEngine) Summary(ctx context.Context, userID string) (*Summary, error) {
	digests, err := e.memoryStore.Digest(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s := &Summary{TotalEntries: len(digests), EntriesPerDay: []DayCount{}}
	perDay := make(map[string]int)
	for _, d := range digests {
		words := d.WordCount
		if words == 0 {
			words = types.CountWords(d.Content)
		}
		s.TotalWords += words
		perDay[d.CreatedAt.UTC().Format("2006-01-02")]++
	}

	for date, n := range perDay {
		s.EntriesPerDay = append(s.EntriesPerDay, DayCount{Date: date, Count: n})
	}
	sort.Slice(s.EntriesPerDay, func(i, j int) bool {
		return s.EntriesPerDay[i].Date < s.EntriesPerDay[j].Date
	})
	return s, nil
}

// DailyPrompt returns a reflection question to prompt the next memory.
func (e *MemoryEngine) DailyPrompt(ctx context.Context) (string, error) {
	if e.deps.Prompter == nil {
		return "", fmt.Errorf("%w: no prompt generator configured", ErrRetrievalUnavailable)
	}
	out, err := withTimeout(ctx, e.config.StepTimeout, e.deps.Prompter.DailyPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}
	if out = strings.TrimSpace(out); out == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrRetrievalUnavailable)
	}
	return out, nil
}
