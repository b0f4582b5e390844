package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/conversation"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// QueryResult is a grounded answer and the memories it was grounded on.
type QueryResult struct {
	Answer string `json:"answer"`

	// UsedIDs lists the memories in the grounding context, in context order.
	UsedIDs []string `json:"used_memory_ids"`

	// Scored is the score breakdown for the used memories, in the same order.
	Scored []types.ScoredCandidate `json:"scored"`

	// Domain is the query domain, if one was detected.
	Domain Domain `json:"domain,omitempty"`
}

// Query answers a question from the user's eligible, unflagged memories.
func (e *MemoryEngine) Query(ctx context.Context, userID, question string) (*QueryResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	res, err := e.answer(ctx, userID, question, []types.Turn{{Role: types.RoleUser, Content: question}})
	observeQuery("query", start, err)
	return res, err
}

// Converse answers the last user turn with the conversation as context. When
// only the new turn is supplied, the stored history for the user is prepended.
// History is capped at the most recent turns and the exchange is appended to
// the user's history.
func (e *MemoryEngine) Converse(ctx context.Context, userID string, turns []types.Turn) (*QueryResult, error) {
	start := time.Now()
	res, err := e.converse(ctx, userID, turns)
	observeQuery("converse", start, err)
	return res, err
}

func (e *MemoryEngine) converse(ctx context.Context, userID string, turns []types.Turn) (*QueryResult, error) {
	if len(turns) == 0 {
		return nil, validationf("at least one turn is required")
	}
	for i, t := range turns {
		if t.Role != types.RoleUser && t.Role != types.RoleAssistant {
			return nil, validationf("turn %d: unknown role %q", i, t.Role)
		}
	}
	last := turns[len(turns)-1]
	last.Content = strings.TrimSpace(last.Content)
	if last.Role != types.RoleUser || last.Content == "" {
		return nil, validationf("last turn must be a non-empty user message")
	}

	history := turns
	if len(turns) == 1 {
		stored, err := e.deps.History.History(ctx, userID)
		if err != nil {
			e.log.Warn("failed to load conversation history", "user_id", userID, "error", err)
		}
		history = append(stored, last)
	}
	history = conversation.Trim(history, conversation.DefaultMaxTurns)

	res, err := e.answer(ctx, userID, last.Content, history)
	if err != nil {
		return nil, err
	}

	if err := e.deps.History.Append(ctx, userID,
		last, types.Turn{Role: types.RoleAssistant, Content: res.Answer}); err != nil {
		e.log.Warn("failed to save conversation history", "user_id", userID, "error", err)
	}
	return res, nil
}

// answer runs embed, candidates, rerank, context and generation for question.
func (e *MemoryEngine) answer(ctx context.Context, userID, question string, turns []types.Turn) (*QueryResult, error) {
	if question == "" {
		return nil, validationf("question is required")
	}
	rc := e.ranking.Load()

	vec, err := withTimeout(ctx, e.config.StepTimeout, func(ctx context.Context) ([]float32, error) {
		return e.deps.Embedder.Embed(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding question: %w", ErrRetrievalUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty question embedding", ErrRetrievalUnavailable)
	}

	candidates, err := e.deps.Candidates.Candidates(ctx, userID, storage.Normalize(vec), rc.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	metrics.QueryCandidates.Observe(float64(len(candidates)))

	q := NewQueryContext(question)
	scored := Rerank(candidates, q, e.now(), rc)
	if len(scored) == 0 {
		return nil, fmt.Errorf("%w: no memories available", ErrNotFound)
	}

	bundle, used := BuildContext(scored, rc.MaxContext)
	out, err := withTimeout(ctx, e.config.StepTimeout, func(ctx context.Context) (string, error) {
		return e.deps.Answerer.Generate(ctx, llm.GenerateRequest{Context: bundle.Text, Turns: turns})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generating answer: %w", ErrRetrievalUnavailable, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrRetrievalUnavailable)
	}

	return &QueryResult{
		Answer:  out,
		UsedIDs: used,
		Scored:  scored[:len(used)],
		Domain:  q.Domain,
	}, nil
}

func observeQuery(operation string, start time.Time, err error) {
	metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrValidation):
		outcome = "invalid"
	case errors.Is(err, ErrNotFound):
		outcome = "no_memories"
	case errors.Is(err, ErrRetrievalUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	metrics.QueryOutcomesTotal.WithLabelValues(operation, outcome).Inc()
}
