package xpi

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/rs/zerolog"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
	"github.com/mozilla-extensions/xpi-manifest/internal/manifest"
	"github.com/mozilla-extensions/xpi-manifest/internal/version"
)

// ArchiveManifestPaths are tried in order inside every archive.
var ArchiveManifestPaths = []string{
	"manifest.json",
	"webextension/manifest.json",
}

// MV3Mode decides when packaged versions must be MV3 compliant.
type MV3Mode string

const (
	// MV3Conditional checks only manifests declaring manifest_version 3.
	MV3Conditional MV3Mode = "conditional"
	// MV3Always checks every packaged manifest.
	MV3Always MV3Mode = "always"
)

// ParseMV3Mode parses a mode name; "" selects MV3Conditional.
func ParseMV3Mode(s string) (MV3Mode, error) {
	switch m := MV3Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MV3Conditional, nil
	case MV3Conditional, MV3Always:
		return m, nil
	default:
		return "", berrors.New(berrors.ErrConfig, "unknown MV3 check mode %q", s)
	}
}

// Checker validates the manifests packaged inside an .xpi.
type Checker struct {
	allow  Allowlist
	mv3    MV3Mode
	logger zerolog.Logger
}

// NewChecker creates a Checker. An empty allow-list falls back to DefaultAllowlist.
func NewChecker(allow Allowlist, mode MV3Mode, logger zerolog.Logger) *Checker {
	if len(allow) == 0 {
		allow = DefaultAllowlist
	}
	if mode == "" {
		mode = MV3Conditional
	}
	return &Checker{
		allow:  allow,
		mv3:    mode,
		logger: logger.With().Str("component", "xpi-check").Logger(),
	}
}

// CheckPackagedManifest opens the archive at path and verifies every
// packaged manifest: the add-on id is allow-listed, the version equals
// expected, and MV3 manifests carry an MV3 version. At least one manifest
// must declare an add-on id.
func (c *Checker) CheckPackagedManifest(path, expected string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	found := false
	for _, name := range ArchiveManifestPaths {
		rec, err := readArchiveManifest(&zr.Reader, name)
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug().Str("archive", path).Str("entry", name).Msg("manifest not in archive")
			continue
		}
		if err != nil {
			return err
		}

		for key, id := range rec.AddonIDs() {
			found = true
			if !c.allow.Allows(id) {
				return berrors.New(berrors.ErrIdentifierNotAllowed,
					"%s %s must end with one of: %s", key, id, c.allow)
			}
			c.logger.Info().Str("key", key).Str("id", id).Msg("add-on id matches the allowlist")
		}

		if got := rec.Version(); got != expected {
			return berrors.New(berrors.ErrVersionMismatch, "%s in %s has version %s, expected %s", name, path, got, expected)
		}
		if c.mv3 == MV3Always || rec.ManifestVersion() == 3 {
			if !version.ValidateMV3(rec.Version()) {
				return berrors.New(berrors.ErrMV3Compliance, "%s in %s: %s", name, path, rec.Version())
			}
		}
	}
	if !found {
		return berrors.New(berrors.ErrAddonIDMissing, "no %s in %s", strings.Join(manifest.IDKeyPaths, " or "), path)
	}
	return nil
}

func readArchiveManifest(zr *zip.Reader, name string) (*manifest.Record, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return manifest.Parse(name, data)
}
