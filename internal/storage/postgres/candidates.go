package postgres

import (
	"context"
	"fmt"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Candidates returns the user's top eligible memories by cosine similarity.
//
// With pgvector the database orders by the <=> cosine distance operator and
// applies the limit; similarities are then recomputed in Go so every backend
// reports identical scores and tie-breaks. Without pgvector, or when the
// vector query fails (for example mixed dimensions), all eligible rows are
// scanned in Go.
func (s *MemoryStore) Candidates(ctx context.Context, userID string, query []float32, limit int) ([]storage.Candidate, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", storage.ErrInvalidInput)
	}

	if s.pgvectorAvailable {
		memories, err := s.vectorCandidates(ctx, userID, query, limit)
		if err == nil {
			return score(memories, query, limit), nil
		}
		s.log.Warn("postgres: vector candidate query failed, falling back to scan", "error", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		WHERE user_id = $1 AND processing_status = $2 AND embedding IS NOT NULL`,
		userID, string(types.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load candidates: %w", err)
	}
	defer rows.Close()

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	return score(memories, query, limit), nil
}

func (s *MemoryStore) vectorCandidates(ctx context.Context, userID string, query []float32, limit int) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		WHERE user_id = $1 AND processing_status = $2 AND embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $3, created_at DESC, id ASC
		LIMIT $4`,
		userID, string(types.StatusCompleted), vectorValue(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func score(memories []types.Memory, query []float32, limit int) []storage.Candidate {
	out := make([]storage.Candidate, 0, len(memories))
	for _, m := range memories {
		out = append(out, storage.Candidate{Memory: m, Similarity: storage.Cosine(query, m.Embedding)})
	}
	return storage.TopCandidates(out, limit)
}

// ListNonTerminal pages through non-terminal memories of every user, by id.
func (s *MemoryStore) ListNonTerminal(ctx context.Context, afterID string, limit int) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		WHERE processing_status IN ($1, $2, $3, $4) AND id > $5
		ORDER BY id ASC LIMIT $6`,
		string(types.StatusPending), string(types.StatusTranscribing),
		string(types.StatusAnalyzing), string(types.StatusEmbedding),
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list non-terminal memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListEligible pages through eligible memories of every user, by id.
func (s *MemoryStore) ListEligible(ctx context.Context, afterID string, limit int) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		WHERE processing_status = $1 AND embedding IS NOT NULL AND id > $2
		ORDER BY id ASC LIMIT $3`,
		string(types.StatusCompleted), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list eligible memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}
