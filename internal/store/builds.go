package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Artifact is one published file of a build.
type Artifact struct {
	Path          string
	FilesizeBytes int64
	SHA256        string
}

// Build is one recorded build.
type Build struct {
	ID          string
	Name        string
	AddonType   string // empty when unset
	Repo        string
	Revision    string
	Directory   string
	Version     string
	Policy      string
	Artifacts   []Artifact
	CreatedAt   int64 // unix ms
	ReleaseName string
	ReleaseURL  string
	ReleasedAt  int64 // unix ms, 0 = not released
}

// RecordBuild inserts a build and its artifacts. ID and CreatedAt are
// filled in when empty.
func (s *Store) RecordBuild(b *Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt == 0 {
		b.CreatedAt = time.Now().UnixMilli()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
	INSERT INTO builds (id, name, addon_type, repo, revision, directory, version, policy, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name,
		sql.NullString{String: b.AddonType, Valid: b.AddonType != ""},
		b.Repo, b.Revision, b.Directory, b.Version, b.Policy, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert build: %w", err)
	}

	for i, a := range b.Artifacts {
		_, err = tx.Exec(`
		INSERT INTO artifacts (build_id, position, path, filesize_bytes, sha256)
		VALUES (?, ?, ?, ?, ?)`,
			b.ID, i, a.Path, a.FilesizeBytes, a.SHA256,
		)
		if err != nil {
			return fmt.Errorf("failed to insert artifact %s: %w", a.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build: %w", err)
	}
	s.logger.Debug().Str("id", b.ID).Str("name", b.Name).Str("version", b.Version).Msg("build recorded")
	return nil
}

const buildColumns = `id, name, addon_type, repo, revision, directory, version, policy,
	created_at, release_name, release_url, released_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row rowScanner) (*Build, error) {
	b := &Build{}
	var addonType, releaseName, releaseURL sql.NullString
	var releasedAt sql.NullInt64
	err := row.Scan(
		&b.ID, &b.Name, &addonType, &b.Repo, &b.Revision, &b.Directory, &b.Version, &b.Policy,
		&b.CreatedAt, &releaseName, &releaseURL, &releasedAt,
	)
	if err != nil {
		return nil, err
	}
	b.AddonType = addonType.String
	b.ReleaseName = releaseName.String
	b.ReleaseURL = releaseURL.String
	b.ReleasedAt = releasedAt.Int64
	return b, nil
}

func (s *Store) loadArtifacts(b *Build) error {
	rows, err := s.db.Query(`
	SELECT path, filesize_bytes, sha256 FROM artifacts
	WHERE build_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Path, &a.FilesizeBytes, &a.SHA256); err != nil {
			return fmt.Errorf("failed to scan artifact: %w", err)
		}
		b.Artifacts = append(b.Artifacts, a)
	}
	return rows.Err()
}

// GetBuild retrieves a build by ID. It returns nil when there is none.
func (s *Store) GetBuild(id string) (*Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBuild(s.db.QueryRow(`SELECT `+buildColumns+` FROM builds WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	if err := s.loadArtifacts(b); err != nil {
		return nil, err
	}
	return b, nil
}

// LatestBuild returns the most recent build of name, or nil.
func (s *Store) LatestBuild(name string) (*Build, error) {
	builds, err := s.ListBuilds(name, 1)
	if err != nil || len(builds) == 0 {
		return nil, err
	}
	return builds[0], nil
}

// ListBuilds returns the builds of name, newest first. An empty name lists
// every add-on; limit <= 0 means no limit.
func (s *Store) ListBuilds(name string, limit int) ([]*Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + buildColumns + ` FROM builds`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	var builds []*Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range builds {
		if err := s.loadArtifacts(b); err != nil {
			return nil, err
		}
	}
	return builds, nil
}

// MarkReleased records the GitHub release published for a build.
func (s *Store) MarkReleased(id, releaseName, releaseURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
	UPDATE builds SET release_name = ?, release_url = ?, released_at = ?
	WHERE id = ?`, releaseName, releaseURL, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to mark build released: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("build not found: %s", id)
	}
	return nil
}
