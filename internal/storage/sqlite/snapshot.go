package sqlite

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Snapshot writes a consistent copy of the database to dest using VACUUM INTO.
// It runs on the store's own connection, so WAL contents are included and
// concurrent writers simply wait. dest must not exist.
func (s *MemoryStore) Snapshot(ctx context.Context, dest string) error {
	if dest == "" {
		return fmt.Errorf("snapshot destination is required")
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("snapshot destination %q already exists", dest)
	}

	quoted := strings.ReplaceAll(dest, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}
