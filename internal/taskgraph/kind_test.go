package taskgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

func TestParseKind_PrimaryDependencyForms(t *testing.T) {
	k, err := ParseKind("upload", []byte(`
loader: multi-dep
kind-dependencies: [build, dep-signing]
group-by: xpi-name
primary-dependency: dep-signing
`))
	require.NoError(t, err)
	assert.Equal(t, StringList{"dep-signing"}, k.Config.PrimaryDependency)

	k, err = ParseKind("upload", []byte(`
loader: multi-dep
kind-dependencies: [build, dep-signing]
group-by: addon-type
primary-dependency:
  - dep-signing
  - build
job-template:
  description: upload
  attributes:
    shipping-phase: promote
`))
	require.NoError(t, err)
	assert.Equal(t, StringList{"dep-signing", "build"}, k.Config.PrimaryDependency)
	assert.Equal(t, "upload", k.Config.JobTemplate["description"])
	assert.Equal(t, map[string]any{"shipping-phase": "promote"}, k.Config.JobTemplate["attributes"])
}

func TestParseKind_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":        "loader: build\ncolour: red\n",
		"unknown loader":       "loader: magic\n",
		"missing dependencies": "loader: single-dep\n",
		"missing group-by":     "loader: multi-dep\nkind-dependencies: [build]\n",
		"build with deps":      "loader: build\nkind-dependencies: [x]\n",
		"unknown transform":    "loader: single-dep\nkind-dependencies: [build]\ntransforms: [balrog]\n",
		"two transforms":       "loader: single-dep\nkind-dependencies: [build]\ntransforms: [signing, test]\n",
		"test on build":        "loader: build\ntransforms: [test]\n",
		"signing on multi-dep": "loader: multi-dep\nkind-dependencies: [build]\ngroup-by: xpi-name\ntransforms: [signing]\n",
		"primary as map":       "loader: multi-dep\nkind-dependencies: [build]\ngroup-by: xpi-name\nprimary-dependency: {a: b}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKind("k", []byte(doc))
			assert.ErrorIs(t, err, berrors.ErrConfig)
		})
	}
}

func TestLoadKinds(t *testing.T) {
	dir := t.TempDir()
	write := func(name, doc string) {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name, KindFile), []byte(doc), 0o644))
	}
	write("dep-signing", "loader: single-dep\nkind-dependencies: [build]\ntransforms: [signing]\n")
	write("build", "loader: build\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644))

	kinds, err := LoadKinds(dir)
	require.NoError(t, err)
	require.Len(t, kinds, 2)
	assert.Equal(t, "build", kinds[0].Name)
	assert.Equal(t, "dep-signing", kinds[1].Name)
	assert.Equal(t, TransformSigning, kinds[1].Config.StageTransform())
}

func TestSortKinds(t *testing.T) {
	kinds := []Kind{
		{Name: "upload", Config: KindConfig{KindDependencies: []string{"build", "dep-signing"}}},
		{Name: "dep-signing", Config: KindConfig{KindDependencies: []string{"build"}}},
		{Name: "build"},
		{Name: "alpha"},
	}
	sorted, err := SortKinds(kinds)
	require.NoError(t, err)
	names := make([]string, len(sorted))
	for i, k := range sorted {
		names[i] = k.Name
	}
	assert.Equal(t, []string{"alpha", "build", "dep-signing", "upload"}, names)
}

func TestSortKinds_Errors(t *testing.T) {
	_, err := SortKinds([]Kind{
		{Name: "a", Config: KindConfig{KindDependencies: []string{"b"}}},
		{Name: "b", Config: KindConfig{KindDependencies: []string{"a"}}},
	})
	assert.ErrorIs(t, err, berrors.ErrConfig)

	_, err = SortKinds([]Kind{{Name: "a", Config: KindConfig{KindDependencies: []string{"missing"}}}})
	assert.ErrorIs(t, err, berrors.ErrConfig)

	_, err = SortKinds([]Kind{{Name: "a"}, {Name: "a"}})
	assert.ErrorIs(t, err, berrors.ErrConfig)
}
