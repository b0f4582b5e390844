package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the memories table. It lives in the
// postgres package for access to the unexported db field and is exported so
// that the postgres_test package can call it.
func (s *MemoryStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE memories CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate memories: %w", err)
	}
	return nil
}
