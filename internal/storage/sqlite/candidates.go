package sqlite

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// parallelScanThreshold is the candidate count above which similarity is
// computed in parallel chunks.
const parallelScanThreshold = 2048

// Candidates scans the user's eligible memories and returns the top limit by
// cosine similarity.
func (s *MemoryStore) Candidates(ctx context.Context, userID string, query []float32, limit int) ([]storage.Candidate, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		WHERE user_id = ? AND processing_status = ? AND embedding IS NOT NULL AND length(embedding) > 0`,
		userID, types.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	defer rows.Close()

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	out := scoreCandidates(memories, query)
	return storage.TopCandidates(out, limit), nil
}

func scoreCandidates(memories []types.Memory, query []float32) []storage.Candidate {
	out := make([]storage.Candidate, len(memories))
	score := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = storage.Candidate{
				Memory:     memories[i],
				Similarity: storage.Cosine(query, memories[i].Embedding),
			}
		}
	}

	if len(memories) < parallelScanThreshold {
		score(0, len(memories))
		return out
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(memories) + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < len(memories); lo += chunk {
		hi := min(lo+chunk, len(memories))
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			score(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
	return out
}

// ListNonTerminal pages through non-terminal memories of every user, by id.
func (s *MemoryStore) ListNonTerminal(ctx context.Context, afterID string, limit int) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		WHERE processing_status IN (?, ?, ?, ?) AND id > ?
		ORDER BY id ASC LIMIT ?`,
		types.StatusPending, types.StatusTranscribing, types.StatusAnalyzing, types.StatusEmbedding,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListEligible pages through eligible memories of every user, by id.
func (s *MemoryStore) ListEligible(ctx context.Context, afterID string, limit int) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		WHERE processing_status = ? AND embedding IS NOT NULL AND id > ?
		ORDER BY id ASC LIMIT ?`,
		types.StatusCompleted, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}
