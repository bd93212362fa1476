// Package version derives unique add-on versions for build artifacts.
//
// A base version read from package.json or manifest.json is combined with a
// build identifier taken from the current UTC time. How that happens depends
// on the configured Policy.
package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Policy selects how a base version is turned into a build version.
type Policy string

const (
	// PolicyMV3Timestamp appends the build id as two numeric components.
	PolicyMV3Timestamp Policy = "mv3-timestamp"
	// PolicyLegacy appends "buildid<date>.<time>" to the last component.
	PolicyLegacy Policy = "legacy"
	// PolicyPassthrough leaves the base version untouched.
	PolicyPassthrough Policy = "passthrough"
)

// ParsePolicy parses a policy name. The empty string selects PolicyMV3Timestamp.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyMV3Timestamp, nil
	case PolicyMV3Timestamp, PolicyLegacy, PolicyPassthrough:
		return p, nil
	default:
		return "", berrors.New(berrors.ErrConfig, "unknown versioning policy %q", s)
	}
}

const (
	maxBaseParts = 3
	maxMV3Parts  = 4
	maxMV3Digits = 9
	legacyMarker = "buildid"
)

// BuildID is the timestamp token that makes a build version unique.
type BuildID struct {
	at time.Time
}

// NewBuildID returns the build id for t, normalized to UTC.
func NewBuildID(t time.Time) BuildID {
	return BuildID{at: t.UTC()}
}

// Date returns the YYYYMMDD component.
func (b BuildID) Date() string {
	return b.at.Format("20060102")
}

// Time returns the time component as H*10000+MM*100+SS without leading
// zeros, so 09:30:05 is "93005" and 00:05:09 is "509".
func (b BuildID) Time() string {
	h, m, s := b.at.Clock()
	return strconv.Itoa(h*10000 + m*100 + s)
}

// String returns the dotted MV3 form, e.g. "20240131.93005".
func (b BuildID) String() string {
	return b.Date() + "." + b.Time()
}

// Legacy returns the zero-padded form used by PolicyLegacy, e.g. "20240131.093005".
func (b BuildID) Legacy() string {
	return b.at.Format("20060102.150405")
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source used for build ids.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver turns base versions into build versions.
type Resolver struct {
	policy Policy
	now    func() time.Time
	logger zerolog.Logger
}

// NewResolver creates a Resolver for the given policy.
func NewResolver(policy Policy, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		policy: policy,
		now:    time.Now,
		logger: logger.With().Str("component", "version").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the resolver's policy.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve returns the build version for base. The build id is taken from
// the resolver's clock at call time.
func (r *Resolver) Resolve(base string) (string, error) {
	switch r.policy {
	case PolicyPassthrough:
		if strings.TrimSpace(base) == "" {
			return "", berrors.New(berrors.ErrFormat, "empty version")
		}
		return base, nil
	case PolicyLegacy:
		return r.resolveLegacy(base)
	case PolicyMV3Timestamp, "":
		return r.resolveMV3(base)
	default:
		return "", berrors.New(berrors.ErrConfig, "unknown versioning policy %q", r.policy)
	}
}

// parseBase parses a base version: 1 to 3 non-empty components.
func parseBase(base string) (Descriptor, error) {
	d, err := Parse(base)
	if err != nil {
		return Descriptor{}, err
	}
	if len(d.Parts) > maxBaseParts {
		return Descriptor{}, berrors.New(berrors.ErrFormat, "%s has %d version parts, expected 1 to %d", base, len(d.Parts), maxBaseParts)
	}
	return d, nil
}

func (r *Resolver) resolveLegacy(base string) (string, error) {
	if _, err := parseBase(base); err != nil {
		return "", err
	}
	if strings.Contains(base, legacyMarker) {
		return "", berrors.New(berrors.ErrFormat, "%s already has a buildid specified", base)
	}
	resolved := base + legacyMarker + NewBuildID(r.now()).Legacy()
	r.logger.Info().Str("base", base).Str("version", resolved).Msg("resolved buildid version")
	return resolved, nil
}

func (r *Resolver) resolveMV3(base string) (string, error) {
	d, err := parseBase(base)
	if err != nil {
		return "", err
	}
	parts := d.Parts
	if len(parts) == maxBaseParts {
		if parts[2] != "0" {
			r.logger.Error().
				Str("base", base).
				Msg("THE PATCH VERSION IS OVERWRITTEN BY THE BUILD ID; SET IT TO 0 IN package.json / manifest.json")
			return "", berrors.New(berrors.ErrConfig, "%s: third version part must be 0, it is replaced by the build id", base)
		}
		parts = parts[:2]
	}
	id := NewBuildID(r.now())
	resolved := Descriptor{Parts: append(append([]string{}, parts...), id.Date(), id.Time())}
	if _, err := resolved.Numeric(); err != nil {
		return "", berrors.New(berrors.ErrMV3Compliance, "%s (from %s)", resolved, base)
	}
	r.logger.Info().Str("base", base).Str("version", resolved.String()).Msg("resolved build version")
	return resolved.String(), nil
}

// ValidateMV3 reports whether v satisfies the Manifest V3 version format:
// 1 to 4 dot-separated integers, each at most 999999999, no leading zeros.
func ValidateMV3(v string) bool {
	d, err := Parse(v)
	if err != nil {
		return false
	}
	_, err = d.Numeric()
	return err == nil
}

func validMV3Part(p string) bool {
	if p == "" || len(p) > maxMV3Digits {
		return false
	}
	if len(p) > 1 && p[0] == '0' {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return false
		}
	}
	return true
}

// Descriptor is a parsed dotted version.
type Descriptor struct {
	Parts []string
}

// Parse splits v into its components. It fails on empty components or more
// than four of them.
func Parse(v string) (Descriptor, error) {
	if v == "" {
		return Descriptor{}, berrors.New(berrors.ErrFormat, "empty version")
	}
	parts := strings.Split(v, ".")
	if len(parts) > maxMV3Parts {
		return Descriptor{}, berrors.New(berrors.ErrFormat, "%s has %d parts", v, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Descriptor{}, berrors.New(berrors.ErrFormat, "%s: component %d is empty", v, i+1)
		}
	}
	return Descriptor{Parts: parts}, nil
}

// String joins the components back together.
func (d Descriptor) String() string {
	return strings.Join(d.Parts, ".")
}

// Numeric returns the components as integers. It fails if any component is
// not MV3-shaped.
func (d Descriptor) Numeric() ([]int, error) {
	out := make([]int, len(d.Parts))
	for i, p := range d.Parts {
		if !validMV3Part(p) {
			return nil, berrors.New(berrors.ErrMV3Compliance, "component %q of %s", p, d)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing component %q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}
