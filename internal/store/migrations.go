package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		addon_type TEXT,
		repo       TEXT NOT NULL,
		revision   TEXT NOT NULL,
		directory  TEXT NOT NULL DEFAULT '',
		version    TEXT NOT NULL,
		policy     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_builds_name ON builds(name, created_at);

	CREATE TABLE IF NOT EXISTS artifacts (
		build_id       TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
		position       INTEGER NOT NULL,
		path           TEXT NOT NULL,
		filesize_bytes INTEGER NOT NULL,
		sha256         TEXT NOT NULL,
		PRIMARY KEY (build_id, position)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil // already at v2+
	}

	// Release columns; ignore errors if they already exist.
	_, _ = s.db.Exec(`ALTER TABLE builds ADD COLUMN release_name TEXT`)
	_, _ = s.db.Exec(`ALTER TABLE builds ADD COLUMN release_url TEXT`)
	_, _ = s.db.Exec(`ALTER TABLE builds ADD COLUMN released_at INTEGER`)

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	s.logger.Info().Msg("migrated schema to v2")
	return nil
}
