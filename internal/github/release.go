package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
	"github.com/mozilla-extensions/xpi-manifest/internal/retry"
)

// XPIMediaType is the content type of uploaded add-ons.
const XPIMediaType = "application/x-xpinstall"

// InstallationClients hands out authenticated go-github clients.
type InstallationClients interface {
	GetInstallationClient(ctx context.Context) (*gh.Client, error)
}

// ReleaseRequest describes one release to publish.
type ReleaseRequest struct {
	Owner      string
	Repo       string
	Tag        string
	Revision   string
	Name       string
	Body       string
	Prerelease bool
	// Assets are local files uploaded under their base names.
	Assets []string
}

// Release is a published release.
type Release struct {
	ID      int64
	HTMLURL string
	Assets  []string
}

// Releaser publishes GitHub releases.
type Releaser struct {
	clients InstallationClients
	retry   retry.Config
	logger  zerolog.Logger
}

// NewReleaser creates a Releaser.
func NewReleaser(clients InstallationClients, cfg retry.Config, logger zerolog.Logger) *Releaser {
	r := &Releaser{
		clients: clients,
		retry:   cfg,
		logger:  logger.With().Str("component", "releaser").Logger(),
	}
	if r.retry.OnRetry == nil {
		r.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			r.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying GitHub call")
		}
	}
	return r
}

// Publish creates the release (or reuses an existing one with the same tag)
// and uploads every asset not already attached.
func (r *Releaser) Publish(ctx context.Context, req ReleaseRequest) (*Release, error) {
	if req.Owner == "" || req.Repo == "" || req.Tag == "" {
		return nil, berrors.New(berrors.ErrConfig, "release needs owner, repo and tag")
	}
	for _, a := range req.Assets {
		if _, err := os.Stat(a); err != nil {
			return nil, berrors.New(berrors.ErrMissingArtifact, "%s: %v", a, err)
		}
	}

	client, err := r.clients.GetInstallationClient(ctx)
	if err != nil {
		return nil, err
	}
	log := r.logger.With().Str("repo", req.Owner+"/"+req.Repo).Str("tag", req.Tag).Logger()

	var rel *gh.RepositoryRelease
	err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
		existing, resp, err := client.Repositories.GetReleaseByTag(ctx, req.Owner, req.Repo, req.Tag)
		if err != nil {
			return apiError("get release", resp, err)
		}
		rel = existing
		return nil
	})
	switch {
	case err == nil:
		log.Info().Int64("id", rel.GetID()).Msg("release already exists")
	case errors.Is(err, berrors.ErrNotFound):
		err = retry.Do(ctx, r.retry, func(ctx context.Context) error {
			created, resp, err := client.Repositories.CreateRelease(ctx, req.Owner, req.Repo, newRelease(req))
			if err != nil {
				return apiError("create release", resp, err)
			}
			rel = created
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.Info().Int64("id", rel.GetID()).Str("name", req.Name).Msg("release created")
	default:
		return nil, err
	}

	attached := make(map[string]bool, len(rel.Assets))
	for _, a := range rel.Assets {
		attached[a.GetName()] = true
	}

	out := &Release{ID: rel.GetID(), HTMLURL: rel.GetHTMLURL()}
	for _, path := range req.Assets {
		name := filepath.Base(path)
		out.Assets = append(out.Assets, name)
		if attached[name] {
			log.Info().Str("asset", name).Msg("asset already uploaded")
			continue
		}
		err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()
			_, resp, err := client.Repositories.UploadReleaseAsset(ctx, req.Owner, req.Repo, rel.GetID(),
				&gh.UploadOptions{Name: name, MediaType: XPIMediaType}, f)
			if err != nil {
				return apiError("upload "+name, resp, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("asset", name).Msg("asset uploaded")
	}
	return out, nil
}

func newRelease(req ReleaseRequest) *gh.RepositoryRelease {
	rel := &gh.RepositoryRelease{
		TagName:    gh.String(req.Tag),
		Name:       gh.String(req.Name),
		Prerelease: gh.Bool(req.Prerelease),
	}
	if req.Revision != "" {
		rel.TargetCommitish = gh.String(req.Revision)
	}
	if req.Body != "" {
		rel.Body = gh.String(req.Body)
	}
	return rel
}

// apiError maps a go-github failure onto the error taxonomy so that retry
// can tell transient failures apart.
func apiError(op string, resp *gh.Response, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return &berrors.APIError{Service: "github", StatusCode: http.StatusTooManyRequests, Message: fmt.Sprintf("%s: %v", op, err), Err: berrors.ErrRateLimit}
	}
	if resp == nil || resp.Response == nil {
		return &berrors.APIError{Service: "github", Message: fmt.Sprintf("%s: %v", op, err), Err: berrors.ErrUnavailable}
	}
	apiErr := berrors.NewAPIError("github", resp.StatusCode, fmt.Sprintf("%s: %v", op, err))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.Err = berrors.ErrAuthFailure
	case http.StatusNotFound:
		apiErr.Err = berrors.ErrNotFound
	}
	return apiErr
}
