// Package store records builds and their artifacts in SQLite so that
// releases can be traced back to the build that produced them.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// connPragmas are applied to the single pooled connection.
var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA synchronous=NORMAL",
}

// Store is the build history database.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
	mu     sync.RWMutex
}

// New opens (or creates) the build history at dbPath and brings its
// schema up to date. The parent directory is created when missing.
func New(dbPath string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open build history: %w", err)
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		path:   dbPath,
		logger: logger.With().Str("component", "store").Logger(),
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug().Str("path", dbPath).Msg("build history opened")
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("failed to reach build history %s: %w", s.path, err)
	}
	for _, pragma := range connPragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrating build history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
