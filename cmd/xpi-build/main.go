// Command xpi-build builds one add-on inside a build task: it stamps a
// unique build version into package.json and manifest.json, runs the
// package manager, validates the packaged XPIs and writes the
// build-manifest record next to them.
//
// Usage:
//
//	XPI_NAME=my-addon ARTIFACT_PREFIX=public/build XPI_HEAD_REPOSITORY=https://... xpi-build
package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/mozilla-extensions/xpi-manifest/internal/build"
	"github.com/mozilla-extensions/xpi-manifest/internal/cli"
	"github.com/mozilla-extensions/xpi-manifest/internal/config"
	"github.com/mozilla-extensions/xpi-manifest/internal/metrics"
	"github.com/mozilla-extensions/xpi-manifest/internal/store"
	"github.com/mozilla-extensions/xpi-manifest/internal/version"
	"github.com/mozilla-extensions/xpi-manifest/internal/xpi"
)

const usage = `xpi-build - build an add-on and record its artifacts.

Usage:
  xpi-build [options]`

func main() {
	logger := cli.NewLogger(os.Getenv("ENVIRONMENT"))

	fs := pflag.NewFlagSet("xpi-build", pflag.ContinueOnError)
	workDir := fs.StringP("workdir", "C", "", "add-on directory (default: current directory)")
	timeout := fs.Duration("timeout", time.Hour, "timeout for each external command")
	help, err := cli.Parse(fs, os.Args[1:], os.Stderr, usage)
	if help || err != nil {
		cli.Exit(logger, err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	cli.SetLevel(cfg.LogLevel)

	ctx, cancel := cli.SignalContext()
	defer cancel()

	cli.Exit(logger, run(ctx, cfg, *workDir, build.NewExecRunner(*timeout, logger), logger))
}

func run(ctx context.Context, cfg *config.Config, workDir string, runner build.Runner, logger zerolog.Logger) error {
	if err := cfg.ValidateBuild(); err != nil {
		return err
	}
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	mode, err := cfg.MV3Mode()
	if err != nil {
		return err
	}

	logger.Info().
		Str("xpi", cfg.XPIName).
		Str("type", cfg.XPIType).
		Str("policy", string(policy)).
		Str("workdir", workDir).
		Msg("starting build")

	m := metrics.New()
	var (
		st       *store.Store
		recorder build.Recorder
	)
	if cfg.DBPath != "" {
		st, err = store.New(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		if n, err := st.Prune(ctx, cfg.DBRetention); err != nil {
			logger.Warn().Err(err).Msg("failed to prune build history")
		} else if n > 0 {
			logger.Info().Int64("pruned", n).Msg("pruned build history")
		}
		recorder = st
	}

	pipeline := build.NewPipeline(build.Options{
		WorkDir:        workDir,
		SrcDir:         cfg.SrcDir,
		ArtifactDir:    cfg.ArtifactDir,
		ArtifactPrefix: cfg.ArtifactPrefix,
		Name:           cfg.XPIName,
		AddonType:      cfg.XPIType,
		Repo:           cfg.HeadRepository(),
		PackageManager: build.PackageManager{Yarn: cfg.UseYarn()},
		Artifacts:      cfg.ArtifactList(),
	},
		runner,
		version.NewResolver(policy, logger),
		xpi.NewChecker(cfg.Allowlist(), mode, logger),
		recorder,
		m,
		logger,
	)

	bm, buildErr := pipeline.Run(ctx)
	if st != nil {
		if size, err := st.SizeBytes(); err != nil {
			logger.Warn().Err(err).Msg("failed to measure build history")
		} else {
			m.SetHistorySize(size)
		}
	}
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("failed to write metrics")
		}
	}
	if buildErr != nil {
		return buildErr
	}
	logger.Info().Str("version", bm.Version).Int("artifacts", len(bm.Artifacts)).Msg("build complete")
	return nil
}
