package store

import (
	"context"
	"fmt"
	"time"
)

// Prune deletes builds older than maxAge that were never released.
// Artifacts go with them.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM builds WHERE released_at IS NULL AND created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old builds: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Dur("max_age", maxAge).Msg("pruned old builds")
	}
	return n, nil
}

// SizeBytes reports how much space the build history takes on disk.
func (s *Store) SizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var size int64
	err := s.db.QueryRow(
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
	).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to measure build history: %w", err)
	}
	return size, nil
}
