// Package build runs the per-add-on build and test steps inside a checkout:
// version rewriting, package manager invocation, artifact collection and
// the build-manifest record.
package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes external commands.
type Runner interface {
	// Run streams the command's output and fails on a non-zero exit.
	Run(ctx context.Context, dir, name string, args ...string) error
	// Output returns the command's trimmed stdout.
	Output(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands as child processes, without a shell.
type ExecRunner struct {
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
	logger  zerolog.Logger
}

// NewExecRunner creates an ExecRunner. timeout bounds each command
// (0 = 1h default). Command output goes to the process's stdout/stderr.
func NewExecRunner(timeout time.Duration, logger zerolog.Logger) *ExecRunner {
	if timeout == 0 {
		timeout = time.Hour
	}
	return &ExecRunner{
		timeout: timeout,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	r.logger.Info().Str("command", commandLine(name, args)).Str("dir", dir).Msg("running command")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return nil
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = r.stderr

	r.logger.Debug().Str("command", commandLine(name, args)).Str("dir", dir).Msg("getting output")
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// PackageManager builds the yarn or npm command lines.
type PackageManager struct {
	Yarn bool
}

// Install returns the dependency install command.
func (p PackageManager) Install() []string {
	if p.Yarn {
		return []string{"yarn", "install", "--frozen-lockfile"}
	}
	return []string{"npm", "install"}
}

// Script returns the command running a package.json script.
func (p PackageManager) Script(name string) []string {
	if p.Yarn {
		return []string{"yarn", name}
	}
	return []string{"npm", "run", name}
}

func run(ctx context.Context, r Runner, dir string, argv []string) error {
	return r.Run(ctx, dir, argv[0], argv[1:]...)
}
