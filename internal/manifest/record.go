// Package manifest reads and rewrites the JSON descriptors of an add-on
// project: package.json and every manifest.json in the source tree.
//
// Rewrites only touch the "version" value; every other byte of the file is
// preserved.
package manifest

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

const (
	// FileName is the WebExtension manifest file name.
	FileName = "manifest.json"
	// PackageFileName is the npm/yarn package descriptor.
	PackageFileName = "package.json"
)

// IDKeyPaths are the two places a manifest may declare its gecko add-on id.
var IDKeyPaths = []string{
	"applications.gecko.id",
	"browser_specific_settings.gecko.id",
}

// Record is one parsed JSON descriptor.
type Record struct {
	Path string
	raw  []byte
}

// Parse validates data as a JSON object. path is informational.
func Parse(path string, data []byte) (*Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, berrors.New(berrors.ErrInvalidManifest, "%s is not valid JSON", path)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, berrors.New(berrors.ErrInvalidManifest, "%s is not a JSON object", path)
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Record{Path: path, raw: raw}, nil
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(path, data)
}

// Bytes returns the current encoded form.
func (r *Record) Bytes() []byte {
	return r.raw
}

// Get returns the raw gjson result for a dotted key path.
func (r *Record) Get(path string) gjson.Result {
	return gjson.GetBytes(r.raw, path)
}

// Version returns the "version" value, or "" if absent.
func (r *Record) Version() string {
	return r.Get("version").String()
}

// HasVersion reports whether a string "version" key is present.
func (r *Record) HasVersion() bool {
	return r.Get("version").Type == gjson.String
}

// ManifestVersion returns "manifest_version", or 0 if absent.
func (r *Record) ManifestVersion() int {
	return int(r.Get("manifest_version").Int())
}

// AddonIDs returns every add-on id declared under IDKeyPaths, keyed by path.
func (r *Record) AddonIDs() map[string]string {
	ids := make(map[string]string)
	for _, key := range IDKeyPaths {
		v := r.Get(key)
		if v.Exists() && v.Type != gjson.Null {
			ids[key] = v.String()
		}
	}
	return ids
}

// SetVersion replaces the "version" value in place.
func (r *Record) SetVersion(v string) error {
	out, err := sjson.SetBytes(r.raw, "version", v)
	if err != nil {
		return fmt.Errorf("setting version in %s: %w", r.Path, err)
	}
	r.raw = out
	return nil
}

// Save writes the record back to Path, keeping the file mode.
func (r *Record) Save() error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(r.Path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(r.Path, r.raw, mode); err != nil {
		return fmt.Errorf("writing %s: %w", r.Path, err)
	}
	return nil
}
