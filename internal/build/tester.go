package build

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
	"github.com/mozilla-extensions/xpi-manifest/internal/manifest"
)

// DefaultTestScript runs when no scripts are requested.
const DefaultTestScript = "test"

// Tester installs dependencies and runs package.json test scripts.
type Tester struct {
	workDir string
	pm      PackageManager
	runner  Runner
	logger  zerolog.Logger
}

// NewTester creates a Tester.
func NewTester(workDir string, pm PackageManager, runner Runner, logger zerolog.Logger) *Tester {
	return &Tester{
		workDir: workDir,
		pm:      pm,
		runner:  runner,
		logger:  logger.With().Str("component", "test").Logger(),
	}
}

// Run installs dependencies and runs scripts. With no scripts it runs the
// package's test script, or nothing when the package has none. It returns
// the scripts that ran.
func (t *Tester) Run(ctx context.Context, scripts []string) ([]string, error) {
	if err := run(ctx, t.runner, t.workDir, t.pm.Install()); err != nil {
		return nil, err
	}

	if len(scripts) == 0 {
		pkgPath := filepath.Join(t.workDir, manifest.PackageFileName)
		pkg, err := manifest.Load(pkgPath)
		if err != nil {
			return nil, berrors.New(berrors.ErrConfig, "can't find %s in %s: %v", manifest.PackageFileName, t.workDir, err)
		}
		if !pkg.Get("scripts." + DefaultTestScript).Exists() {
			t.logger.Info().Msg("no test script in package.json; nothing to do")
			return nil, nil
		}
		scripts = []string{DefaultTestScript}
	}

	for _, s := range scripts {
		if err := run(ctx, t.runner, t.workDir, t.pm.Script(s)); err != nil {
			return nil, err
		}
	}
	return scripts, nil
}
