package taskgraph

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Loader names.
const (
	LoaderBuild     = "build"
	LoaderMultiDep  = "multi-dep"
	LoaderSingleDep = "single-dep"
)

// KindFile is the file name of a kind configuration inside its directory.
const KindFile = "kind.yml"

// StringList decodes either a scalar string or a sequence of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = StringList{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	default:
		return berrors.New(berrors.ErrConfig, "line %d: expected a string or a list of strings", node.Line)
	}
}

// KindConfig is the declarative configuration of one kind.
type KindConfig struct {
	Loader            string         `yaml:"loader"`
	Transforms        []string       `yaml:"transforms,omitempty"`
	KindDependencies  []string       `yaml:"kind-dependencies,omitempty"`
	GroupBy           string         `yaml:"group-by,omitempty"`
	PrimaryDependency StringList     `yaml:"primary-dependency,omitempty"`
	JobTemplate       map[string]any `yaml:"job-template,omitempty"`
	TaskTemplate      map[string]any `yaml:"task-template,omitempty"`
	OnlyForAddonTypes []string       `yaml:"only-for-addon-types,omitempty"`
	OnlyForAttributes []string       `yaml:"only-for-attributes,omitempty"`
}

// Filter is the grouping filter the configuration describes.
func (c KindConfig) Filter() Filter {
	return Filter{
		Kinds:      c.KindDependencies,
		AddonTypes: c.OnlyForAddonTypes,
		Attributes: c.OnlyForAttributes,
	}
}

// StageTransform is the stage transform the kind applies, or "" for plain
// dependent tasks.
func (c KindConfig) StageTransform() string {
	if len(c.Transforms) == 0 {
		return ""
	}
	return c.Transforms[0]
}

// Kind is a named kind configuration.
type Kind struct {
	Name   string
	Config KindConfig
}

// ParseKind decodes and validates a kind configuration.
func ParseKind(name string, data []byte) (Kind, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg KindConfig
	if err := dec.Decode(&cfg); err != nil {
		return Kind{}, berrors.New(berrors.ErrConfig, "kind %s: %v", name, err)
	}
	k := Kind{Name: name, Config: cfg}
	if err := k.validate(); err != nil {
		return Kind{}, err
	}
	return k, nil
}

func (k Kind) validate() error {
	c := k.Config
	switch c.Loader {
	case LoaderBuild:
		if len(c.KindDependencies) > 0 {
			return berrors.New(berrors.ErrConfig, "kind %s: build kinds take no kind-dependencies", k.Name)
		}
	case LoaderMultiDep:
		if len(c.KindDependencies) == 0 {
			return berrors.New(berrors.ErrConfig, "kind %s: kind-dependencies is required", k.Name)
		}
		if _, err := GroupByFunc(c.GroupBy); err != nil {
			return berrors.New(berrors.ErrConfig, "kind %s: %v", k.Name, err)
		}
	case LoaderSingleDep:
		if len(c.KindDependencies) == 0 {
			return berrors.New(berrors.ErrConfig, "kind %s: kind-dependencies is required", k.Name)
		}
	default:
		return berrors.New(berrors.ErrConfig, "kind %s: unknown loader %q", k.Name, c.Loader)
	}
	if len(c.Transforms) > 1 {
		return berrors.New(berrors.ErrConfig, "kind %s: at most one transform, got %v", k.Name, c.Transforms)
	}
	for _, t := range c.Transforms {
		if !contains(stageTransforms, t) {
			return berrors.New(berrors.ErrConfig, "kind %s: unknown transform %q", k.Name, t)
		}
		if c.Loader != LoaderSingleDep {
			return berrors.New(berrors.ErrConfig, "kind %s: the %s transform needs the %s loader", k.Name, t, LoaderSingleDep)
		}
	}
	return nil
}

// LoadKinds reads <dir>/<name>/kind.yml for every subdirectory of dir,
// sorted by name.
func LoadKinds(dir string) ([]Kind, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, berrors.New(berrors.ErrConfig, "read kinds dir: %v", err)
	}
	var kinds []Kind
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), KindFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, berrors.New(berrors.ErrConfig, "read kind %s: %v", e.Name(), err)
		}
		k, err := ParseKind(e.Name(), data)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Name < kinds[j].Name })
	return kinds, nil
}
