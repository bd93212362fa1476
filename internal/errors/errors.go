// Package errors provides the error taxonomy for the xpi build tooling.
//
// Every failure in this repository is terminal for the current invocation:
// a mis-versioned or mis-signed artifact is worse than a failed build. Only
// GitHub API calls are retried, see IsRetryable.
package errors

import (
	"errors"
	"fmt"
)

// Build pipeline failures.
var (
	ErrFormat               = errors.New("malformed version")
	ErrConfig               = errors.New("configuration error")
	ErrConsistency          = errors.New("inconsistent manifests")
	ErrIdentifierNotAllowed = errors.New("add-on id not allowed")
	ErrAddonIDMissing       = errors.New("add-on id not found")
	ErrVersionMismatch      = errors.New("version mismatch")
	ErrMV3Compliance        = errors.New("version is not MV3 compliant")
	ErrMissingArtifact      = errors.New("missing artifact")
	ErrDuplicateArtifact    = errors.New("duplicate artifact")
	ErrPathEscape           = errors.New("path outside working directory")
	ErrInvalidManifest      = errors.New("invalid manifest")
	ErrInvalidCatalog       = errors.New("invalid xpi catalog")
)

// Task grouping failures.
var (
	ErrAmbiguousPrimary = errors.New("ambiguous primary dependency")
	ErrDuplicatePrimary = errors.New("too many primary dependencies")
	ErrPrimaryNotFound  = errors.New("primary dependency not found")
)

// Transport failures.
var (
	ErrTimeout     = errors.New("operation timed out")
	ErrAuthFailure = errors.New("authentication failed")
	ErrRateLimit   = errors.New("rate limit exceeded")
	ErrNotFound    = errors.New("resource not found")
	ErrUnavailable = errors.New("service unavailable")
)

// BuildError attaches context to one of the sentinel kinds above.
type BuildError struct {
	Kind error
	Msg  string
}

func (e *BuildError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *BuildError) Unwrap() error { return e.Kind }

// New returns a BuildError of the given kind with a formatted message.
func New(kind error, format string, args ...any) error {
	return &BuildError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is of the given kind. Shorthand for errors.Is so
// callers don't need to import both packages.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
