package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

const sampleCatalog = `
xpis:
  - name: system-addon
    repo-prefix: sysaddon
    active: true
    artifacts:
      - dist/system-addon.xpi
    addon-type: system
    install-type: npm
  - name: private-addon
    repo-prefix: privaddon
    active: true
    private-repo: true
    directory: extension
    artifacts:
      - web-ext-artifacts/private.xpi
    addon-type: standard
  - name: retired
    repo-prefix: retired
    artifacts: [old.xpi]
    addon-type: standard
`

var sampleRepos = []string{"sysaddon", "privaddon", "retired"}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog), sampleRepos)
	require.NoError(t, err)
	require.Len(t, c.XPIs, 3)

	active := c.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "system-addon", active[0].Name)
	assert.Equal(t, "public/build", active[0].ArtifactPrefix())
	assert.Equal(t, "xpi/build", active[1].ArtifactPrefix())
	assert.Equal(t, []string{"private-addon", "retired", "system-addon"}, c.Names())
}

func TestGet(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog), nil)
	require.NoError(t, err)

	x, err := c.Get("private-addon")
	require.NoError(t, err)
	assert.Equal(t, "extension", x.Directory)

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, berrors.ErrInvalidCatalog)
	assert.Contains(t, err.Error(), "known: private-addon, retired, system-addon")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown repo",
			yaml: "xpis:\n  - {name: a, repo-prefix: other, artifacts: [a.xpi], addon-type: system}\n",
			want: "not in graph config",
		},
		{
			name: "dash in prefix",
			yaml: "xpis:\n  - {name: a, repo-prefix: sys-addon, artifacts: [a.xpi], addon-type: system}\n",
			want: "contains a '-'",
		},
		{
			name: "bad addon type",
			yaml: "xpis:\n  - {name: a, repo-prefix: sysaddon, artifacts: [a.xpi], addon-type: theme}\n",
			want: "addon-type",
		},
		{
			name: "bad install type",
			yaml: "xpis:\n  - {name: a, repo-prefix: sysaddon, artifacts: [a.xpi], addon-type: system, install-type: pnpm}\n",
			want: "install-type",
		},
		{
			name: "missing artifacts",
			yaml: "xpis:\n  - {name: a, repo-prefix: sysaddon, addon-type: system}\n",
			want: "artifacts is required",
		},
		{
			name: "duplicates",
			yaml: "xpis:\n  - {name: a, repo-prefix: sysaddon, artifacts: [a.xpi], addon-type: system}\n  - {name: a, repo-prefix: sysaddon, artifacts: [a.xpi], addon-type: system}\n",
			want: "duplicate xpi names: a",
		},
		{
			name: "unknown field",
			yaml: "xpis:\n  - {name: a, repo-prefix: sysaddon, artifacts: [a.xpi], addon-type: system, colour: red}\n",
			want: "colour",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), sampleRepos)
			require.Error(t, err)
			assert.ErrorIs(t, err, berrors.ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xpi-manifest.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))
	c, err := Load(path, sampleRepos)
	require.NoError(t, err)
	assert.Len(t, c.XPIs, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"), nil)
	assert.Error(t, err)
}
