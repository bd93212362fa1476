// Package cli holds the setup shared by the xpi-* commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// NewLogger returns the process logger: JSON on stdout, or a console
// writer on stderr when environment is "development".
func NewLogger(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	if environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger
	return logger
}

// SetLevel applies a LOG_LEVEL value. Unknown levels are ignored.
func SetLevel(level string) {
	if l, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(l)
	}
}

// Parse parses args into fs. help reports that usage was printed and the
// command should exit cleanly.
func Parse(fs *pflag.FlagSet, args []string, output io.Writer, usage string) (help bool, err error) {
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "%s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, &ExitError{Code: 2, Message: err.Error()}
	}
	return false, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Exit terminates the process for err: ExitError codes are kept, any other
// error exits 1.
func Exit(logger zerolog.Logger, err error) {
	if err == nil {
		os.Exit(0)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.Message)
		os.Exit(exitErr.Code)
	}
	logger.Error().Err(err).Msg("command failed")
	os.Exit(1)
}
