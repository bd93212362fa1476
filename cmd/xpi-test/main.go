// Command xpi-test installs an add-on's dependencies and runs its test
// scripts. With no arguments it runs the "test" script when package.json
// defines one.
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/mozilla-extensions/xpi-manifest/internal/build"
	"github.com/mozilla-extensions/xpi-manifest/internal/cli"
	"github.com/mozilla-extensions/xpi-manifest/internal/config"
)

const usage = `xpi-test - run an add-on's package.json test scripts.

Usage:
  xpi-test [options] [SCRIPT...]`

func main() {
	logger := cli.NewLogger(os.Getenv("ENVIRONMENT"))

	fs := pflag.NewFlagSet("xpi-test", pflag.ContinueOnError)
	workDir := fs.StringP("workdir", "C", ".", "add-on directory")
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

	cli.Exit(logger, run(ctx, cfg, *workDir, fs.Args(), *timeout, logger))
}

func run(ctx context.Context, cfg *config.Config, workDir string, scripts []string, timeout time.Duration, logger zerolog.Logger) error {
	tester := build.NewTester(workDir, build.PackageManager{Yarn: cfg.UseYarn()}, build.NewExecRunner(timeout, logger), logger)
	ran, err := tester.Run(ctx, scripts)
	if err != nil {
		return err
	}
	logger.Info().Strs("scripts", ran).Msg("tests complete")
	return nil
}
