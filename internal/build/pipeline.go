package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
	"github.com/mozilla-extensions/xpi-manifest/internal/manifest"
	"github.com/mozilla-extensions/xpi-manifest/internal/metrics"
	"github.com/mozilla-extensions/xpi-manifest/internal/store"
	"github.com/mozilla-extensions/xpi-manifest/internal/version"
	"github.com/mozilla-extensions/xpi-manifest/internal/xpi"
)

// Recorder keeps a history of builds.
type Recorder interface {
	RecordBuild(b *store.Build) error
}

// Options describe one build.
type Options struct {
	// WorkDir is the add-on directory inside the checkout.
	WorkDir string
	// SrcDir is the checkout root.
	SrcDir         string
	ArtifactDir    string
	ArtifactPrefix string
	Name           string
	AddonType      string
	Repo           string
	PackageManager PackageManager
	// Artifacts are paths relative to WorkDir; empty means discover them.
	Artifacts []string
}

// Pipeline runs a build.
type Pipeline struct {
	opts     Options
	runner   Runner
	resolver *version.Resolver
	checker  *xpi.Checker
	recorder Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewPipeline creates a Pipeline. recorder and m may be nil.
func NewPipeline(opts Options, runner Runner, resolver *version.Resolver, checker *xpi.Checker, recorder Recorder, m *metrics.Metrics, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		opts:     opts,
		runner:   runner,
		resolver: resolver,
		checker:  checker,
		recorder: recorder,
		metrics:  m,
		logger:   logger.With().Str("component", "build").Str("xpi", opts.Name).Logger(),
	}
}

// ManifestPath is where the build-manifest record is written.
func (p *Pipeline) ManifestPath() string {
	return filepath.Join(p.opts.ArtifactDir, manifest.FileName)
}

// Run executes the build and returns the build-manifest record written to
// the artifact directory.
func (p *Pipeline) Run(ctx context.Context) (*xpi.BuildManifest, error) {
	start := time.Now()
	bm, err := p.run(ctx)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
			if reason := FailureReason(err); reason != "" {
				p.metrics.RecordValidationFailure(reason)
			}
		}
		p.metrics.RecordBuild(string(p.resolver.Policy()), status, time.Since(start).Seconds())
	}
	return bm, err
}

func (p *Pipeline) run(ctx context.Context) (*xpi.BuildManifest, error) {
	tree, err := manifest.LoadTree(p.opts.WorkDir, p.logger)
	if err != nil {
		return nil, err
	}
	base, err := tree.BaseVersion()
	if err != nil {
		return nil, err
	}
	buildVersion, err := p.resolver.Resolve(base)
	if err != nil {
		return nil, err
	}
	p.logger.Info().Str("base", base).Str("version", buildVersion).Msg("resolved build version")

	revision, err := p.runner.Output(ctx, p.opts.WorkDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("reading revision: %w", err)
	}

	if err := tree.ApplyVersion(buildVersion); err != nil {
		return nil, err
	}

	pm := p.opts.PackageManager
	if err := run(ctx, p.runner, p.opts.WorkDir, pm.Install()); err != nil {
		return nil, err
	}
	if err := run(ctx, p.runner, p.opts.WorkDir, pm.Script("build")); err != nil {
		return nil, err
	}

	artifacts := p.opts.Artifacts
	if len(artifacts) == 0 {
		if artifacts, err = xpi.DiscoverArtifacts(p.opts.WorkDir); err != nil {
			return nil, err
		}
		p.logger.Info().Strs("artifacts", artifacts).Msg("discovered artifacts")
	}

	collector := xpi.NewCollector(p.opts.WorkDir, p.opts.ArtifactDir, p.opts.ArtifactPrefix, p.checker, p.logger)
	collected, err := collector.Collect(artifacts, buildVersion)
	if err != nil {
		return nil, err
	}

	directory, err := filepath.Rel(p.opts.WorkDir, p.opts.SrcDir)
	if err != nil {
		return nil, fmt.Errorf("relating %s to %s: %w", p.opts.SrcDir, p.opts.WorkDir, err)
	}

	bm := &xpi.BuildManifest{
		Artifacts: collected,
		Directory: directory,
		Name:      p.opts.Name,
		Repo:      p.opts.Repo,
		Revision:  revision,
		Version:   buildVersion,
	}
	if p.opts.AddonType != "" {
		addonType := p.opts.AddonType
		bm.AddonType = &addonType
	}
	if err := bm.Write(p.ManifestPath()); err != nil {
		return nil, err
	}
	p.logger.Info().Str("path", p.ManifestPath()).Int("artifacts", len(collected)).Msg("wrote build manifest")

	for _, a := range collected {
		if p.metrics != nil {
			p.metrics.RecordArtifact(a.FilesizeBytes)
		}
	}
	// Recording is best effort.
	if p.recorder != nil {
		if err := p.recorder.RecordBuild(toRecord(bm, p.resolver.Policy())); err != nil {
			p.logger.Warn().Err(err).Msg("failed to record build")
		}
	}
	return bm, nil
}

func toRecord(bm *xpi.BuildManifest, policy version.Policy) *store.Build {
	b := &store.Build{
		Name:      bm.Name,
		Repo:      bm.Repo,
		Revision:  bm.Revision,
		Directory: bm.Directory,
		Version:   bm.Version,
		Policy:    string(policy),
	}
	if bm.AddonType != nil {
		b.AddonType = *bm.AddonType
	}
	for _, a := range bm.Artifacts {
		b.Artifacts = append(b.Artifacts, store.Artifact{Path: a.Path, FilesizeBytes: a.FilesizeBytes, SHA256: a.SHA256})
	}
	return b
}

var failureReasons = []struct {
	kind   error
	reason string
}{
	{berrors.ErrMV3Compliance, "mv3"},
	{berrors.ErrIdentifierNotAllowed, "id-not-allowed"},
	{berrors.ErrAddonIDMissing, "id-missing"},
	{berrors.ErrVersionMismatch, "version-mismatch"},
	{berrors.ErrFormat, "version-format"},
	{berrors.ErrConsistency, "version-consistency"},
	{berrors.ErrMissingArtifact, "missing-artifact"},
	{berrors.ErrDuplicateArtifact, "duplicate-artifact"},
	{berrors.ErrPathEscape, "path-escape"},
	{berrors.ErrInvalidManifest, "invalid-manifest"},
}

// FailureReason names the validation a build error came from, or "" when
// it is not a validation failure.
func FailureReason(err error) string {
	for _, fr := range failureReasons {
		if errors.Is(err, fr.kind) {
			return fr.reason
		}
	}
	return ""
}
