package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-extensions/xpi-manifest/internal/config"
	"github.com/mozilla-extensions/xpi-manifest/internal/taskgraph"
)

const testCatalog = `
xpis:
  - name: sys
    repo-prefix: sys
    active: true
    artifacts: [dist/sys.xpi]
    addon-type: system
  - name: priv
    repo-prefix: priv
    active: true
    private-repo: true
    artifacts: [priv.xpi]
    addon-type: standard
`

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func setup(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	opts := options{
		manifest: filepath.Join(dir, "xpi-manifest.yml"),
		kinds:    filepath.Join(dir, "kinds"),
		output:   filepath.Join(dir, "out", "graph.json"),
	}
	writeFile(t, opts.manifest, testCatalog)
	writeFile(t, filepath.Join(opts.kinds, "build", taskgraph.KindFile),
		"loader: build\njob-template:\n  attributes:\n    shipping-phase: build\n")
	writeFile(t, filepath.Join(opts.kinds, "dep-signing", taskgraph.KindFile),
		"loader: single-dep\nkind-dependencies: [build]\ntransforms: [signing]\n")
	writeFile(t, filepath.Join(opts.kinds, "test", taskgraph.KindFile),
		"loader: single-dep\nkind-dependencies: [build]\ntransforms: [test]\n")
	require.NoError(t, os.MkdirAll(filepath.Dir(opts.output), 0o755))
	return opts
}

func TestRun(t *testing.T) {
	opts := setup(t)
	prom := filepath.Join(t.TempDir(), "xpi.prom")

	require.NoError(t, run(&config.Config{MetricsFile: prom}, opts, zerolog.Nop()))

	data, err := os.ReadFile(opts.output)
	require.NoError(t, err)
	var g graph
	require.NoError(t, json.Unmarshal(data, &g))

	assert.Len(t, g.Tasks, 6)
	for _, label := range []string{"build-sys", "build-priv", "dep-signing-sys", "dep-signing-priv", "test-sys", "test-priv"} {
		assert.Contains(t, g.Tasks, label)
	}
	assert.Equal(t, "dep-signing", g.Tasks["dep-signing-priv"].Kind)
	assert.Equal(t, map[string]string{"build": "build-priv"}, g.Tasks["dep-signing-priv"].Dependencies)
	assert.Equal(t, "xpi/build", g.Tasks["test-priv"].Env()["ARTIFACT_PREFIX"])
	assert.ElementsMatch(t, []string{
		"build-sys", "build-priv",
		"dep-signing-sys", "dep-signing-priv",
		"test-sys", "test-priv",
	}, g.TargetTasks)
	assert.FileExists(t, prom)
}

func TestRun_TargetTasksMethod(t *testing.T) {
	opts := setup(t)
	params := filepath.Join(t.TempDir(), "parameters.yml")
	writeFile(t, params, "level: \"1\"\nxpi_name: priv\ntarget_tasks_method: ship_xpi\n")
	opts.parameters = params
	opts.method = "promote_xpi"

	require.NoError(t, run(&config.Config{}, opts, zerolog.Nop()))

	data, err := os.ReadFile(opts.output)
	require.NoError(t, err)
	var g graph
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Len(t, g.Tasks, 3)
	assert.NotContains(t, g.Tasks, "build-sys")
	assert.Equal(t, []string{"build-priv", "dep-signing-priv", "test-priv"}, g.TargetTasks)
}

func TestRun_DuplicateLabel(t *testing.T) {
	opts := setup(t)
	// check-sys comes out of both build-sys and dep-signing-sys.
	writeFile(t, filepath.Join(opts.kinds, "check", taskgraph.KindFile),
		"loader: single-dep\nkind-dependencies: [build, dep-signing]\n")

	err := run(&config.Config{}, opts, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task label check-")
	assert.NoFileExists(t, opts.output)
}

func TestRun_UnknownRepository(t *testing.T) {
	opts := setup(t)
	opts.repositories = "sys, other"

	err := run(&config.Config{}, opts, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repo-prefix priv not in graph config repositories")
}
