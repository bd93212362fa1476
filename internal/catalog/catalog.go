// Package catalog loads the XPI catalog (xpi-manifest.yml): the list of
// add-ons this repository knows how to build, sign and ship.
//
// A Catalog is built explicitly by the caller and passed to whatever needs
// it; there is no process-wide cache.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Add-on types.
const (
	AddonTypeSystem   = "system"
	AddonTypeStandard = "standard"
)

// Install types.
const (
	InstallYarn = "yarn"
	InstallNPM  = "npm"
)

// XPI is one catalog entry.
type XPI struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description,omitempty"`
	RepoPrefix       string   `yaml:"repo-prefix"`
	Directory        string   `yaml:"directory,omitempty"`
	Branch           string   `yaml:"branch,omitempty"`
	Active           bool     `yaml:"active,omitempty"`
	PrivateRepo      bool     `yaml:"private-repo,omitempty"`
	Artifacts        []string `yaml:"artifacts"`
	AddonType        string   `yaml:"addon-type"`
	InstallType      string   `yaml:"install-type,omitempty"`
	TreeherderSymbol string   `yaml:"treeherder-symbol,omitempty"`
	DockerImage      string   `yaml:"docker-image,omitempty"`
	AdditionalEmails []string `yaml:"additional-emails,omitempty"`
}

// ArtifactPrefix is where build artifacts are published: private
// repositories publish under a non-public prefix.
func (x XPI) ArtifactPrefix() string {
	if x.PrivateRepo {
		return "xpi/build"
	}
	return "public/build"
}

// Catalog is the parsed xpi-manifest.yml.
type Catalog struct {
	XPIs []XPI `yaml:"xpis"`
}

// Parse decodes and validates a catalog. repositories lists the repository
// prefixes known to the graph configuration; nil skips that check.
func Parse(data []byte, repositories []string) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, berrors.New(berrors.ErrInvalidCatalog, "decode: %v", err)
	}
	if err := c.Validate(repositories); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses the catalog at path.
func Load(path string, repositories []string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data, repositories)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate checks required fields, enumerations, repository prefixes and
// name uniqueness. All problems are reported together.
func (c *Catalog) Validate(repositories []string) error {
	known := make(map[string]bool, len(repositories))
	for _, r := range repositories {
		known[r] = true
	}

	var problems []string
	counts := make(map[string]int, len(c.XPIs))
	for i, x := range c.XPIs {
		name := x.Name
		if name == "" {
			name = fmt.Sprintf("xpis[%d]", i)
			problems = append(problems, name+": name is required")
		}
		counts[x.Name]++
		switch {
		case x.RepoPrefix == "":
			problems = append(problems, name+": repo-prefix is required")
		case strings.Contains(x.RepoPrefix, "-"):
			problems = append(problems, fmt.Sprintf("%s: repo-prefix contains a '-': %s", name, x.RepoPrefix))
		case repositories != nil && !known[x.RepoPrefix]:
			problems = append(problems, fmt.Sprintf("%s: repo-prefix %s not in graph config repositories", name, x.RepoPrefix))
		}
		if len(x.Artifacts) == 0 {
			problems = append(problems, name+": artifacts is required")
		}
		if x.AddonType != AddonTypeSystem && x.AddonType != AddonTypeStandard {
			problems = append(problems, fmt.Sprintf("%s: addon-type must be %s or %s, got %q", name, AddonTypeSystem, AddonTypeStandard, x.AddonType))
		}
		if x.InstallType != "" && x.InstallType != InstallYarn && x.InstallType != InstallNPM {
			problems = append(problems, fmt.Sprintf("%s: install-type must be %s or %s, got %q", name, InstallNPM, InstallYarn, x.InstallType))
		}
	}

	var dups []string
	for name, n := range counts {
		if n > 1 && name != "" {
			dups = append(dups, name)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		problems = append(problems, "duplicate xpi names: "+strings.Join(dups, ", "))
	}

	if len(problems) > 0 {
		return berrors.New(berrors.ErrInvalidCatalog, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// Get returns the single entry named name.
func (c *Catalog) Get(name string) (XPI, error) {
	var matches []XPI
	for _, x := range c.XPIs {
		if x.Name == name {
			matches = append(matches, x)
		}
	}
	if len(matches) != 1 {
		return XPI{}, berrors.New(berrors.ErrInvalidCatalog, "unable to find a single xpi named %s: found %d (known: %s)",
			name, len(matches), strings.Join(c.Names(), ", "))
	}
	return matches[0], nil
}

// Active returns the active entries in catalog order.
func (c *Catalog) Active() []XPI {
	var out []XPI
	for _, x := range c.XPIs {
		if x.Active {
			out = append(out, x)
		}
	}
	return out
}

// Names returns every entry name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.XPIs))
	for _, x := range c.XPIs {
		names = append(names, x.Name)
	}
	sort.Strings(names)
	return names
}
