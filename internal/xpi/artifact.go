package xpi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Artifact is one entry of the build-manifest record.
type Artifact struct {
	FilesizeBytes int64  `json:"filesize_bytes"`
	Path          string `json:"path"`
	SHA256        string `json:"sha256"`
}

// BuildManifest is the record written next to the build artifacts. Fields
// are declared in key order so the encoded JSON has sorted keys.
type BuildManifest struct {
	AddonType *string    `json:"addon-type"`
	Artifacts []Artifact `json:"artifacts"`
	Directory string     `json:"directory"`
	Name      string     `json:"name"`
	Repo      string     `json:"repo"`
	Revision  string     `json:"revision"`
	Version   string     `json:"version"`
}

// Write encodes the record with two-space indentation.
func (m *BuildManifest) Write(path string) error {
	if m.Artifacts == nil {
		m.Artifacts = []Artifact{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding build manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing build manifest: %w", err)
	}
	return nil
}

// ReadBuildManifest decodes a record written by Write.
func ReadBuildManifest(path string) (*BuildManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build manifest: %w", err)
	}
	var m BuildManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding build manifest: %w", err)
	}
	return &m, nil
}

// HashFile returns the hex sha256 and size of the file at path.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// EnsureWithin fails with ErrPathEscape unless target resolves to a path
// strictly below parent. Symlinks are resolved on both sides.
func EnsureWithin(parent, target string) error {
	p, err := resolve(parent)
	if err != nil {
		return err
	}
	t, err := resolve(target)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(p, t)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return berrors.New(berrors.ErrPathEscape, "%s is not under %s", target, parent)
	}
	return nil
}

func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	return resolved, nil
}

var artifactPatterns = []string{"*.xpi", "*/*.xpi"}

// DiscoverArtifacts finds *.xpi files in workDir and its direct
// subdirectories, sorted.
func DiscoverArtifacts(workDir string) ([]string, error) {
	fsys := os.DirFS(workDir)
	var matches []string
	for _, pattern := range artifactPatterns {
		m, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("globbing %s: %w", pattern, err)
		}
		matches = append(matches, m...)
	}
	sort.Strings(matches)
	return matches, nil
}

// Collector copies built artifacts into the artifact directory, records
// their hashes and validates the packaged manifests.
type Collector struct {
	WorkDir     string
	ArtifactDir string
	Prefix      string

	checker *Checker
	logger  zerolog.Logger
}

// NewCollector creates a Collector.
func NewCollector(workDir, artifactDir, prefix string, checker *Checker, logger zerolog.Logger) *Collector {
	return &Collector{
		WorkDir:     workDir,
		ArtifactDir: artifactDir,
		Prefix:      prefix,
		checker:     checker,
		logger:      logger.With().Str("component", "artifacts").Logger(),
	}
}

// Collect processes artifacts (relative to WorkDir) and returns their
// build-manifest entries in input order.
func (c *Collector) Collect(artifacts []string, expectedVersion string) ([]Artifact, error) {
	if err := os.MkdirAll(c.ArtifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", c.ArtifactDir, err)
	}
	seen := make(map[string]bool, len(artifacts))
	out := make([]Artifact, 0, len(artifacts))
	for _, artifact := range artifacts {
		base := filepath.Base(artifact)
		target := filepath.Join(c.ArtifactDir, base)
		if seen[target] {
			return nil, berrors.New(berrors.ErrDuplicateArtifact, "%s already exists", target)
		}
		seen[target] = true

		src := artifact
		if !filepath.IsAbs(src) {
			src = filepath.Join(c.WorkDir, artifact)
		}
		if _, err := os.Stat(src); err != nil {
			return nil, berrors.New(berrors.ErrMissingArtifact, "%s", artifact)
		}
		if err := EnsureWithin(c.WorkDir, src); err != nil {
			return nil, err
		}

		sum, size, err := HashFile(src)
		if err != nil {
			return nil, err
		}
		c.logger.Info().Str("artifact", artifact).Str("target", target).Msg("copying artifact")
		if err := copyFile(src, target); err != nil {
			return nil, err
		}
		if err := c.checker.CheckPackagedManifest(target, expectedVersion); err != nil {
			return nil, err
		}
		out = append(out, Artifact{
			Path:          path.Join(c.Prefix, base),
			FilesizeBytes: size,
			SHA256:        sum,
		})
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
