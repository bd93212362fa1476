// Command xpi-taskgraph evaluates the XPI catalog and kind configurations
// and prints the resulting task descriptors, plus the labels selected by
// the target-tasks method, as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/mozilla-extensions/xpi-manifest/internal/catalog"
	"github.com/mozilla-extensions/xpi-manifest/internal/cli"
	"github.com/mozilla-extensions/xpi-manifest/internal/config"
	"github.com/mozilla-extensions/xpi-manifest/internal/metrics"
	"github.com/mozilla-extensions/xpi-manifest/internal/taskgraph"
)

const usage = `xpi-taskgraph - generate XPI build, signing and release tasks.

Usage:
  xpi-taskgraph [options]`

type options struct {
	manifest     string
	kinds        string
	parameters   string
	repositories string
	method       string
	output       string
}

// graph is the command's JSON output.
type graph struct {
	Tasks       map[string]taskgraph.Task `json:"tasks"`
	TargetTasks []string                  `json:"target_tasks"`
}

func main() {
	logger := cli.NewLogger(os.Getenv("ENVIRONMENT"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	cli.SetLevel(cfg.LogLevel)

	var opts options
	fs := pflag.NewFlagSet("xpi-taskgraph", pflag.ContinueOnError)
	fs.StringVar(&opts.manifest, "manifest", cfg.ManifestPath, "path to xpi-manifest.yml")
	fs.StringVar(&opts.kinds, "kinds", cfg.KindsDir, "directory holding one sub-directory per kind")
	fs.StringVarP(&opts.parameters, "parameters", "p", "", "YAML parameters file")
	fs.StringVar(&opts.repositories, "repositories", "", "comma-separated repository prefixes the catalog may use")
	fs.StringVar(&opts.method, "target-tasks-method", "", "overrides the parameters' target_tasks_method")
	fs.StringVarP(&opts.output, "output", "o", "-", "output file, - for stdout")
	help, err := cli.Parse(fs, os.Args[1:], os.Stderr, usage)
	if help || err != nil {
		cli.Exit(logger, err)
	}

	cli.Exit(logger, run(cfg, opts, logger))
}

func run(cfg *config.Config, opts options, logger zerolog.Logger) error {
	var repositories []string
	if opts.repositories != "" {
		for _, r := range strings.Split(opts.repositories, ",") {
			repositories = append(repositories, strings.TrimSpace(r))
		}
	}
	cat, err := catalog.Load(opts.manifest, repositories)
	if err != nil {
		return err
	}

	var params taskgraph.Parameters
	if opts.parameters != "" {
		if params, err = taskgraph.LoadParameters(opts.parameters); err != nil {
			return err
		}
	}
	if opts.method != "" {
		params.TargetTasksMethod = opts.method
	}
	if params.TargetTasksMethod == "" {
		params.TargetTasksMethod = "build_xpi"
	}

	kinds, err := taskgraph.LoadKinds(opts.kinds)
	if err != nil {
		return err
	}

	m := metrics.New()
	tasks, err := taskgraph.NewGenerator(cat, params, m, logger).Generate(kinds)
	if err != nil {
		return err
	}
	targets, err := taskgraph.TargetTasks(tasks, params.TargetTasksMethod)
	if err != nil {
		return err
	}

	out := graph{Tasks: make(map[string]taskgraph.Task, len(tasks)), TargetTasks: targets}
	for _, t := range tasks {
		if _, dup := out.Tasks[t.Label]; dup {
			return fmt.Errorf("duplicate task label %s", t.Label)
		}
		out.Tasks[t.Label] = t
	}
	logger.Info().
		Int("kinds", len(kinds)).
		Int("tasks", len(tasks)).
		Int("targets", len(targets)).
		Str("method", params.TargetTasksMethod).
		Msg("task graph generated")

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("failed to write metrics")
		}
	}
	return write(opts.output, out)
}

func write(path string, g graph) error {
	if path == "-" || path == "" {
		return encode(os.Stdout, g)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encode(w io.Writer, g graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
