// Package vectorindex keeps an in-process chromem-go index of eligible memory
// embeddings and serves similarity candidates from it.
//
// The index is a cache, not a source of truth. Every hit is re-read from the
// record store and dropped unless the stored memory is still eligible and has
// the content generation that was indexed, so a stale entry can delay a
// memory's return but never surfaces outdated content.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/recall/internal/events"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

const (
	metaGeneration = "generation"
	rebuildBatch   = 500
)

// Source is the part of the record store the index reads from.
type Source interface {
	Get(ctx context.Context, userID, id string) (*types.Memory, error)
	GetMany(ctx context.Context, userID string, ids []string) ([]types.Memory, error)
	ListEligible(ctx context.Context, afterID string, limit int) ([]types.Memory, error)
	Candidates(ctx context.Context, userID string, query []float32, limit int) ([]storage.Candidate, error)
}

// ChromemIndex is a per-user chromem collection set.
type ChromemIndex struct {
	db          *chromem.DB
	source      Source
	log         *logger.Logger
	collections map[string]*chromem.Collection // Per-user collections
	mu          sync.RWMutex
}

// New creates an empty in-memory index backed by source.
func New(source Source, log *logger.Logger) (*ChromemIndex, error) {
	if source == nil {
		return nil, errors.New("vectorindex: source is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ChromemIndex{
		db:          chromem.NewDB(),
		source:      source,
		log:         log,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (ix *ChromemIndex) collection(userID string, create bool) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, exists := ix.collections[userID]
	ix.mu.RUnlock()
	if exists || !create {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, exists := ix.collections[userID]; exists {
		return col, nil
	}

	// Embeddings are always supplied, so no embedding func is needed.
	col, err := ix.db.CreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[userID] = col
	return col, nil
}

// Upsert indexes an eligible memory, replacing any previous entry for its id.
// Ineligible memories are ignored.
func (ix *ChromemIndex) Upsert(ctx context.Context, m *types.Memory) error {
	if m == nil || !m.EligibleForRetrieval() {
		return nil
	}
	col, err := ix.collection(m.UserID, true)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        m.ID,
		Embedding: append([]float32(nil), m.Embedding...),
		Metadata: map[string]string{
			metaGeneration: strconv.FormatInt(m.Generation, 10),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Rebuild indexes every eligible memory in the store.
func (ix *ChromemIndex) Rebuild(ctx context.Context) (int, error) {
	var (
		afterID string
		total   int
	)
	for {
		batch, err := ix.source.ListEligible(ctx, afterID, rebuildBatch)
		if err != nil {
			return total, fmt.Errorf("vectorindex: listing eligible memories: %w", err)
		}
		for i := range batch {
			if err := ix.Upsert(ctx, &batch[i]); err != nil {
				return total, err
			}
			total++
		}
		if len(batch) < rebuildBatch {
			break
		}
		afterID = batch[len(batch)-1].ID
	}
	ix.log.Info("vector index rebuilt", "memories", total)
	return total, nil
}

// Len returns the number of indexed entries for userID.
func (ix *ChromemIndex) Len(userID string) int {
	col, _ := ix.collection(userID, false)
	if col == nil {
		return 0
	}
	return col.Count()
}

// tieEpsilon absorbs the float32 rounding in chromem's similarities when
// comparing them with the recomputed cosine at the cut-off.
const tieEpsilon = 1e-6

// Candidates returns up to limit verified hits for query in the store's
// order: similarity descending, then newer created_at, then id. Similarity is
// recomputed from the stored embedding. The fetch widens until the cut-off
// cannot hide an equally similar memory. If the index cannot answer, the
// store is asked directly.
func (ix *ChromemIndex) Candidates(ctx context.Context, userID string, query []float32, limit int) ([]storage.Candidate, error) {
	if limit < 1 {
		return nil, nil
	}
	col, _ := ix.collection(userID, false)
	if col == nil || col.Count() == 0 {
		return nil, nil
	}

	count := col.Count()
	// Over-fetch so that stale entries dropped below do not starve the result.
	n := min(2*limit, count)
	for {
		results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
		if err != nil {
			ix.log.Warn("vector index query failed, using store", "user_id", userID, "error", err)
			return ix.source.Candidates(ctx, userID, query, limit)
		}
		if len(results) == 0 {
			return nil, nil
		}

		out, err := ix.verify(ctx, userID, query, results)
		if err != nil {
			return nil, err
		}
		out = storage.TopCandidates(out, 0)
		if n >= count || complete(out, results, limit) {
			return storage.TopCandidates(out, limit), nil
		}
		n = min(2*n, count)
	}
}

// complete reports whether out holds limit candidates and no unfetched
// entry can tie with the last of them.
func complete(out []storage.Candidate, results []chromem.Result, limit int) bool {
	if len(out) < limit {
		return false
	}
	cutoff := out[limit-1].Similarity
	lowest := float64(results[len(results)-1].Similarity)
	return lowest < cutoff-tieEpsilon
}

// verify re-reads hits from the store and keeps those that are still
// eligible at the indexed generation.
func (ix *ChromemIndex) verify(ctx context.Context, userID string, query []float32, results []chromem.Result) ([]storage.Candidate, error) {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	memories, err := ix.source.GetMany(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.Memory, len(memories))
	for i := range memories {
		byID[memories[i].ID] = &memories[i]
	}

	out := make([]storage.Candidate, 0, len(results))
	for _, r := range results {
		m, ok := byID[r.ID]
		if !ok || !m.EligibleForRetrieval() {
			continue
		}
		if r.Metadata[metaGeneration] != strconv.FormatInt(m.Generation, 10) {
			continue
		}
		out = append(out, storage.Candidate{Memory: *m, Similarity: storage.Cosine(query, m.Embedding)})
	}
	return out, nil
}

// Publish keeps the index current from lifecycle events. Completed memories
// are read back from the store and indexed.
func (ix *ChromemIndex) Publish(ctx context.Context, e events.Event) error {
	if e.Type != events.TypeStatusChanged || e.Status != types.StatusCompleted {
		return nil
	}
	m, err := ix.source.Get(ctx, e.UserID, e.MemoryID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return ix.Upsert(ctx, m)
}
