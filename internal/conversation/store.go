// Package conversation keeps the bounded per-user history used by the
// conversational query endpoint.
package conversation

import (
	"context"

	"github.com/scrypster/recall/pkg/types"
)

// DefaultMaxTurns bounds a user's stored history.
const DefaultMaxTurns = 20

// Store keeps the most recent turns per user, oldest first.
type Store interface {
	History(ctx context.Context, userID string) ([]types.Turn, error)
	Append(ctx context.Context, userID string, turns ...types.Turn) error
	Clear(ctx context.Context, userID string) error
}

// Trim returns the last max turns of turns.
func Trim(turns []types.Turn, max int) []types.Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}
