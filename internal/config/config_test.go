// Package config tests.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
	"github.com/mozilla-extensions/xpi-manifest/internal/version"
	"github.com/mozilla-extensions/xpi-manifest/internal/xpi"
)

func setBuildEnvs(t *testing.T) {
	t.Helper()
	envs := map[string]string{
		"ARTIFACT_PREFIX":         "public/build",
		"XPI_NAME":                "my-addon",
		"XPI_TYPE":                "system",
		"REPO_PREFIX":             "myaddon",
		"MYADDON_HEAD_REPOSITORY": "https://github.com/mozilla-extensions/my-addon",
	}
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Success(t *testing.T) {
	setBuildEnvs(t)
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)
	assert.Equal(t, "my-addon", cfg.XPIName)
	assert.Equal(t, "system", cfg.XPIType)
	assert.Equal(t, "https://github.com/mozilla-extensions/my-addon", cfg.HeadRepository())
	assert.Equal(t, "MYADDON_HEAD_REPOSITORY", cfg.HeadRepositoryVar())
	assert.NoError(t, cfg.ValidateBuild())
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "xpi", cfg.RepoPrefix)
	assert.Equal(t, "yarn", cfg.InstallType)
	assert.Equal(t, "/builds/worker/artifacts", cfg.ArtifactDir)
	assert.Equal(t, "/builds/worker/checkouts/src", cfg.SrcDir)
	assert.True(t, cfg.UseYarn())
	assert.Nil(t, cfg.ArtifactList())
	assert.Equal(t, 90*24*time.Hour, cfg.DBRetention)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, version.PolicyMV3Timestamp, p)
	m, err := cfg.MV3Mode()
	require.NoError(t, err)
	assert.Equal(t, xpi.MV3Conditional, m)
	assert.Equal(t, xpi.DefaultAllowlist, cfg.Allowlist())
}

func TestValidateBuild_ReportsAllMissing(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.ValidateBuild()
	require.ErrorIs(t, err, berrors.ErrConfig)
	assert.Contains(t, err.Error(), "ARTIFACT_PREFIX")
	assert.Contains(t, err.Error(), "XPI_NAME")
	assert.Contains(t, err.Error(), "XPI_HEAD_REPOSITORY")
}

func TestValidateBuild_BadPolicy(t *testing.T) {
	setBuildEnvs(t)
	t.Setenv("XPI_VERSIONING_POLICY", "semver")
	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.ValidateBuild(), berrors.ErrConfig)
}

func TestArtifactListAndAllowlist(t *testing.T) {
	cfg := &Config{
		Artifacts:   "dist/a.xpi; web-ext-artifacts/b.xpi;",
		IDAllowlist: "@example.com, @example.org",
		InstallType: "npm",
	}
	assert.Equal(t, []string{"dist/a.xpi", "web-ext-artifacts/b.xpi"}, cfg.ArtifactList())
	assert.Equal(t, xpi.Allowlist{"@example.com", "@example.org"}, cfg.Allowlist())
	assert.False(t, cfg.UseYarn())
}

func TestConfig_GitHubEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.GitHubEnabled())
	cfg.GitHubAppID = 123
	cfg.GitHubPrivateKeyPath = "/tmp/test.pem"
	assert.True(t, cfg.GitHubEnabled())
}

func TestParseGitHubOrgs(t *testing.T) {
	cfg := &Config{GitHubOrgs: "mozilla-extensions:111, mozilla:222"}
	orgs, err := cfg.ParseGitHubOrgs()
	require.NoError(t, err)
	assert.Equal(t, []OrgInstallation{
		{Owner: "mozilla-extensions", InstallationID: 111},
		{Owner: "mozilla", InstallationID: 222},
	}, orgs)

	id, err := cfg.InstallationFor("Mozilla")
	require.NoError(t, err)
	assert.Equal(t, int64(222), id)

	_, err = cfg.InstallationFor("someone-else")
	assert.ErrorIs(t, err, berrors.ErrConfig)
}

func TestParseGitHubOrgs_Fallback(t *testing.T) {
	cfg := &Config{GitHubInstallationID: 42}
	id, err := cfg.InstallationFor("anyone")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = (&Config{}).ParseGitHubOrgs()
	assert.ErrorIs(t, err, berrors.ErrConfig)
}

func TestParseGitHubOrgs_Invalid(t *testing.T) {
	for _, raw := range []string{"noid", "owner:abc", " , "} {
		_, err := (&Config{GitHubOrgs: raw}).ParseGitHubOrgs()
		assert.Error(t, err, raw)
	}
}

func TestLoad_HeadRepositoryNeedsPrefix(t *testing.T) {
	os.Clearenv()
	t.Setenv("ARTIFACT_PREFIX", "public/build")
	t.Setenv("XPI_NAME", "my-addon")
	t.Setenv("REPO_PREFIX", "myaddon")
	t.Setenv("HEAD_REPOSITORY", "https://github.com/someone/else")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.HeadRepository())

	err = cfg.ValidateBuild()
	require.ErrorIs(t, err, berrors.ErrConfig)
	assert.Contains(t, err.Error(), "MYADDON_HEAD_REPOSITORY")
}
