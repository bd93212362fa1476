package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
	"github.com/mozilla-extensions/xpi-manifest/internal/version"
	"github.com/mozilla-extensions/xpi-manifest/internal/xpi"
)

// OrgInstallation pairs an org name with its GitHub App installation ID.
type OrgInstallation struct {
	Owner          string
	InstallationID int64
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Build task environment, set per XPI by the build kind
	ArtifactPrefix string `envconfig:"ARTIFACT_PREFIX"`
	XPIName        string `envconfig:"XPI_NAME"`
	XPIType        string `envconfig:"XPI_TYPE"`
	RepoPrefix     string `envconfig:"REPO_PREFIX" default:"xpi"`
	InstallType    string `envconfig:"XPI_INSTALL_TYPE" default:"yarn"`
	Artifacts      string `envconfig:"XPI_ARTIFACTS"` // ';'-separated; empty means discover *.xpi

	// Versioning and packaged-manifest checks
	VersioningPolicy string `envconfig:"XPI_VERSIONING_POLICY" default:"mv3-timestamp"`
	IDAllowlist      string `envconfig:"XPI_ID_ALLOWLIST"` // comma-separated suffixes; empty means the built-in list
	MV3Check         string `envconfig:"XPI_MV3_CHECK" default:"conditional"`

	// Worker layout
	ArtifactDir string `envconfig:"ARTIFACT_DIR" default:"/builds/worker/artifacts"`
	SrcDir      string `envconfig:"SRC_DIR" default:"/builds/worker/checkouts/src"`

	// Release tracking and metrics (optional)
	DBPath      string        `envconfig:"XPI_DB_PATH"`
	DBRetention time.Duration `envconfig:"XPI_DB_RETENTION" default:"2160h"`
	MetricsFile string        `envconfig:"XPI_METRICS_FILE"`

	// Task graph
	ManifestPath string `envconfig:"XPI_MANIFEST_PATH" default:"xpi-manifest.yml"`
	KindsDir     string `envconfig:"XPI_KINDS_DIR" default:"taskcluster/ci"`

	// GitHub App (optional, only xpi-release needs it)
	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `envconfig:"GITHUB_PRIVATE_KEY_PATH"`
	GitHubAPIURL         string `envconfig:"GITHUB_API_URL"`

	// Multi-org: comma-separated "owner:installationID" pairs
	// Example: "mozilla-extensions:111307878,mozilla:222408999"
	// If set, overrides GitHubInstallationID.
	GitHubOrgs string `envconfig:"GITHUB_ORGS"`

	headRepository string
}

// repoEnv is processed with the repository prefix. The field carries no
// envconfig key so there is no unprefixed HEAD_REPOSITORY alternate.
type repoEnv struct {
	HeadRepository string `split_words:"true"`
}

// HeadRepository is the value of <REPO_PREFIX>_HEAD_REPOSITORY.
func (c *Config) HeadRepository() string {
	return c.headRepository
}

// HeadRepositoryVar names the variable HeadRepository is read from.
func (c *Config) HeadRepositoryVar() string {
	return strings.ToUpper(c.RepoPrefix) + "_HEAD_REPOSITORY"
}

// ValidateBuild checks the variables the build script cannot run without.
// Every missing variable is reported.
func (c *Config) ValidateBuild() error {
	var missing []string
	if c.ArtifactPrefix == "" {
		missing = append(missing, "ARTIFACT_PREFIX")
	}
	if c.XPIName == "" {
		missing = append(missing, "XPI_NAME")
	}
	if c.headRepository == "" {
		missing = append(missing, c.HeadRepositoryVar())
	}
	if len(missing) > 0 {
		return berrors.New(berrors.ErrConfig, "not set: %s", strings.Join(missing, ", "))
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.MV3Mode(); err != nil {
		return err
	}
	return nil
}

// ArtifactList returns the configured artifact paths, or nil when they
// should be discovered.
func (c *Config) ArtifactList() []string {
	return splitList(c.Artifacts, ";")
}

// Policy parses XPI_VERSIONING_POLICY.
func (c *Config) Policy() (version.Policy, error) {
	return version.ParsePolicy(c.VersioningPolicy)
}

// MV3Mode parses XPI_MV3_CHECK.
func (c *Config) MV3Mode() (xpi.MV3Mode, error) {
	return xpi.ParseMV3Mode(c.MV3Check)
}

// Allowlist returns the configured id suffixes, or the built-in list.
func (c *Config) Allowlist() xpi.Allowlist {
	if list := splitList(c.IDAllowlist, ","); len(list) > 0 {
		return xpi.Allowlist(list)
	}
	return xpi.DefaultAllowlist
}

// UseYarn reports whether the package manager is yarn.
func (c *Config) UseYarn() bool {
	return c.InstallType == "" || c.InstallType == "yarn"
}

// GitHubEnabled returns true if GitHub App credentials are configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubAppID > 0 && c.GitHubPrivateKeyPath != ""
}

// ParseGitHubOrgs parses GITHUB_ORGS into an OrgInstallation list.
// Format: "owner1:installationID1,owner2:installationID2"
// Falls back to GITHUB_INSTALLATION_ID if GITHUB_ORGS is empty.
func (c *Config) ParseGitHubOrgs() ([]OrgInstallation, error) {
	if c.GitHubOrgs != "" {
		return parseOrgInstallations(c.GitHubOrgs)
	}
	if c.GitHubInstallationID > 0 {
		return []OrgInstallation{{Owner: "default", InstallationID: c.GitHubInstallationID}}, nil
	}
	return nil, berrors.New(berrors.ErrConfig, "no GitHub installations configured")
}

// InstallationFor returns the installation ID serving owner. A single
// default installation serves every owner.
func (c *Config) InstallationFor(owner string) (int64, error) {
	orgs, err := c.ParseGitHubOrgs()
	if err != nil {
		return 0, err
	}
	for _, o := range orgs {
		if strings.EqualFold(o.Owner, owner) || o.Owner == "default" {
			return o.InstallationID, nil
		}
	}
	return 0, berrors.New(berrors.ErrConfig, "no GitHub installation for %s", owner)
}

func parseOrgInstallations(raw string) ([]OrgInstallation, error) {
	parts := strings.Split(raw, ",")
	orgs := make([]OrgInstallation, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.SplitN(part, ":", 2)
		if len(tokens) != 2 {
			return nil, berrors.New(berrors.ErrConfig, "invalid org format %q, expected owner:installationID", part)
		}
		owner := strings.TrimSpace(tokens[0])
		id, err := strconv.ParseInt(strings.TrimSpace(tokens[1]), 10, 64)
		if err != nil {
			return nil, berrors.New(berrors.ErrConfig, "invalid installation ID for %q: %v", owner, err)
		}
		orgs = append(orgs, OrgInstallation{Owner: owner, InstallationID: id})
	}
	if len(orgs) == 0 {
		return nil, berrors.New(berrors.ErrConfig, "GITHUB_ORGS is set but contains no valid entries")
	}
	return orgs, nil
}

func splitList(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	var repo repoEnv
	if err := envconfig.Process(strings.ToUpper(cfg.RepoPrefix), &repo); err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.HeadRepositoryVar(), err)
	}
	cfg.headRepository = repo.HeadRepository
	return &cfg, nil
}
