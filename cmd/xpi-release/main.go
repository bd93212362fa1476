// Command xpi-release publishes a GitHub release for a built add-on and
// uploads its XPI artifacts.
//
// The build is taken from the build history database when XPI_DB_PATH is
// set, otherwise from the build-manifest record in ARTIFACT_DIR.
package main

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/mozilla-extensions/xpi-manifest/internal/cli"
	"github.com/mozilla-extensions/xpi-manifest/internal/config"
	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
	ghclient "github.com/mozilla-extensions/xpi-manifest/internal/github"
	"github.com/mozilla-extensions/xpi-manifest/internal/manifest"
	"github.com/mozilla-extensions/xpi-manifest/internal/metrics"
	"github.com/mozilla-extensions/xpi-manifest/internal/retry"
	"github.com/mozilla-extensions/xpi-manifest/internal/store"
	"github.com/mozilla-extensions/xpi-manifest/internal/taskgraph"
	"github.com/mozilla-extensions/xpi-manifest/internal/xpi"
)

const usage = `xpi-release - publish a GitHub release for a built add-on.

Usage:
  xpi-release [options]`

type options struct {
	xpiName     string
	buildID     string
	buildNumber int
	tag         string
	body        string
	prerelease  bool
}

// release is the build being published.
type release struct {
	id        string
	name      string
	repo      string
	revision  string
	version   string
	artifacts []string
}

func main() {
	logger := cli.NewLogger(os.Getenv("ENVIRONMENT"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	cli.SetLevel(cfg.LogLevel)

	var opts options
	fs := pflag.NewFlagSet("xpi-release", pflag.ContinueOnError)
	fs.StringVar(&opts.xpiName, "xpi", cfg.XPIName, "add-on to release")
	fs.StringVar(&opts.buildID, "build-id", "", "recorded build to release (default: the latest)")
	fs.IntVar(&opts.buildNumber, "build-number", 1, "release build number")
	fs.StringVar(&opts.tag, "tag", "", "release tag (default: the release name)")
	fs.StringVar(&opts.body, "body", "", "release notes")
	fs.BoolVar(&opts.prerelease, "prerelease", false, "mark the release as a prerelease")
	help, err := cli.Parse(fs, os.Args[1:], os.Stderr, usage)
	if help || err != nil {
		cli.Exit(logger, err)
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	cli.Exit(logger, run(ctx, cfg, opts, logger))
}

func run(ctx context.Context, cfg *config.Config, opts options, logger zerolog.Logger) error {
	if !cfg.GitHubEnabled() {
		return berrors.New(berrors.ErrConfig, "GITHUB_APP_ID and GITHUB_PRIVATE_KEY_PATH are required")
	}

	var st *store.Store
	if cfg.DBPath != "" {
		s, err := store.New(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		st = s
	}

	rel, err := loadRelease(st, cfg.ArtifactDir, opts)
	if err != nil {
		return err
	}

	owner, repo, err := ghclient.ParseRepo(rel.repo)
	if err != nil {
		return berrors.New(berrors.ErrConfig, "%v", err)
	}
	installationID, err := cfg.InstallationFor(owner)
	if err != nil {
		return err
	}
	var ghOpts []ghclient.Option
	if cfg.GitHubAPIURL != "" {
		ghOpts = append(ghOpts, ghclient.WithBaseURL(cfg.GitHubAPIURL))
	}
	client, err := ghclient.NewClient(cfg.GitHubAppID, installationID, cfg.GitHubPrivateKeyPath, logger, ghOpts...)
	if err != nil {
		return err
	}

	name := taskgraph.ReleaseName(rel.name, rel.version, opts.buildNumber)
	tag := opts.tag
	if tag == "" {
		tag = name
	}
	logger.Info().
		Str("xpi", rel.name).
		Str("version", rel.version).
		Str("repo", owner+"/"+repo).
		Str("tag", tag).
		Msg("publishing release")

	m := metrics.New()
	published, err := ghclient.NewReleaser(client, retry.DefaultConfig(), logger).Publish(ctx, ghclient.ReleaseRequest{
		Owner:      owner,
		Repo:       repo,
		Tag:        tag,
		Revision:   rel.revision,
		Name:       name,
		Body:       opts.body,
		Prerelease: opts.prerelease,
		Assets:     rel.artifacts,
	})
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RecordRelease(status)
	if cfg.MetricsFile != "" {
		if werr := m.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Warn().Err(werr).Str("path", cfg.MetricsFile).Msg("failed to write metrics")
		}
	}
	if err != nil {
		return err
	}

	if st != nil && rel.id != "" {
		if err := st.MarkReleased(rel.id, name, published.HTMLURL); err != nil {
			logger.Warn().Err(err).Str("build", rel.id).Msg("failed to mark build released")
		}
	}
	logger.Info().Str("url", published.HTMLURL).Strs("assets", published.Assets).Msg("release published")
	return nil
}

// loadRelease resolves the build to publish. Artifact paths are mapped from
// their published prefix to files in artifactDir.
func loadRelease(st *store.Store, artifactDir string, opts options) (*release, error) {
	if st == nil {
		bm, err := xpi.ReadBuildManifest(filepath.Join(artifactDir, manifest.FileName))
		if err != nil {
			return nil, err
		}
		rel := &release{name: bm.Name, repo: bm.Repo, revision: bm.Revision, version: bm.Version}
		for _, a := range bm.Artifacts {
			rel.artifacts = append(rel.artifacts, filepath.Join(artifactDir, path.Base(a.Path)))
		}
		return rel, nil
	}

	var (
		b   *store.Build
		err error
	)
	if opts.buildID != "" {
		b, err = st.GetBuild(opts.buildID)
	} else {
		if opts.xpiName == "" {
			return nil, berrors.New(berrors.ErrConfig, "--xpi or XPI_NAME is required")
		}
		b, err = st.LatestBuild(opts.xpiName)
	}
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, berrors.New(berrors.ErrNotFound, "no recorded build (xpi %q, id %q)", opts.xpiName, opts.buildID)
	}
	rel := &release{id: b.ID, name: b.Name, repo: b.Repo, revision: b.Revision, version: b.Version}
	for _, a := range b.Artifacts {
		rel.artifacts = append(rel.artifacts, filepath.Join(artifactDir, path.Base(a.Path)))
	}
	return rel, nil
}
