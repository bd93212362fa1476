package manifest

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// skipDirs are never descended into when looking for manifests.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Find returns every manifest.json below root in walk order.
func Find(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == FileName {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Tree is an add-on project: an optional package.json plus its manifests.
type Tree struct {
	Root      string
	Package   *Record
	Manifests []*Record

	logger zerolog.Logger
}

// LoadTree reads package.json (if any) and every manifest below root.
func LoadTree(root string, logger zerolog.Logger) (*Tree, error) {
	t := &Tree{
		Root:   root,
		logger: logger.With().Str("component", "manifest").Logger(),
	}

	pkgPath := filepath.Join(root, PackageFileName)
	if pkg, err := Load(pkgPath); err == nil {
		t.Package = pkg
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	paths, err := Find(root)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		rec, err := Load(p)
		if err != nil {
			return nil, err
		}
		t.Manifests = append(t.Manifests, rec)
	}
	return t, nil
}

// Records returns package.json first (when present) followed by the
// manifests in discovery order.
func (t *Tree) Records() []*Record {
	out := make([]*Record, 0, len(t.Manifests)+1)
	if t.Package != nil {
		out = append(out, t.Package)
	}
	return append(out, t.Manifests...)
}

// BaseVersion returns the version the build starts from. package.json wins
// when present; otherwise all manifests must agree.
func (t *Tree) BaseVersion() (string, error) {
	if t.Package != nil {
		if !t.Package.HasVersion() {
			return "", berrors.New(berrors.ErrConfig, "%s has no version", t.Package.Path)
		}
		return t.Package.Version(), nil
	}
	var base, from string
	for _, m := range t.Manifests {
		if !m.HasVersion() {
			continue
		}
		if base == "" {
			base, from = m.Version(), m.Path
			continue
		}
		if m.Version() != base {
			return "", berrors.New(berrors.ErrConsistency,
				"%s has version %s but %s has %s, and there is no %s to decide",
				from, base, m.Path, m.Version(), PackageFileName)
		}
	}
	if base == "" {
		return "", berrors.New(berrors.ErrConfig, "no %s or %s with a version in %s", PackageFileName, FileName, t.Root)
	}
	return base, nil
}

// ApplyVersion writes v into package.json and every manifest, then reads
// each file back and checks it carries v.
func (t *Tree) ApplyVersion(v string) error {
	records := t.Records()
	for _, rec := range records {
		old := rec.Version()
		if err := rec.SetVersion(v); err != nil {
			return err
		}
		if err := rec.Save(); err != nil {
			return err
		}
		t.logger.Info().Str("path", rec.Path).Str("was", old).Str("now", v).Msg("updated version")
	}
	for _, rec := range records {
		reread, err := Load(rec.Path)
		if err != nil {
			return err
		}
		if got := reread.Version(); got != v {
			return berrors.New(berrors.ErrVersionMismatch, "%s has %s after rewrite, expected %s", rec.Path, got, v)
		}
	}
	return nil
}
