// Package github authenticates as a GitHub App installation and publishes
// add-on releases.
package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"
)

// Installation tokens last an hour; refresh when less than this remains.
const tokenRefreshMargin = 5 * time.Minute

// Client wraps the GitHub API with App authentication.
type Client struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	httpClient     *http.Client
	baseURL        *url.URL
	uploadURL      *url.URL
	logger         zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL points the client at a GitHub Enterprise or test server.
// Uploads go to the same host.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing base URL: %w", err)
		}
		c.baseURL = u
		c.uploadURL = u
		return nil
	}
}

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// NewClient creates a new GitHub App client.
func NewClient(appID, installationID int64, privateKeyPath string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return NewClientFromKeyBytes(appID, installationID, keyData, logger, opts...)
}

// NewClientFromKeyBytes creates a client from PEM key bytes (useful for testing).
func NewClientFromKeyBytes(appID, installationID int64, keyData []byte, logger zerolog.Logger, opts ...Option) (*Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	c := &Client{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		httpClient:     &http.Client{Timeout: 2 * time.Minute},
		logger:         logger.With().Str("component", "github").Logger(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// generateJWT creates a JWT for GitHub App authentication.
func (c *Client) generateJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", c.appID),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing JWT: %w", err)
	}
	return signed, nil
}

func (c *Client) newAPIClient(scheme, token string) *gh.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := gh.NewClient(&http.Client{
		Transport: &tokenTransport{scheme: scheme, token: token, base: base},
		Timeout:   c.httpClient.Timeout,
	})
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
		client.UploadURL = c.uploadURL
	}
	return client
}

// installationToken returns a cached or freshly minted installation token.
func (c *Client) installationToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiresAt) > tokenRefreshMargin {
		c.logger.Debug().Msg("using cached installation token")
		return c.token, nil
	}

	c.logger.Info().Int64("installation", c.installationID).Msg("generating new installation token")
	jwtToken, err := c.generateJWT()
	if err != nil {
		return "", fmt.Errorf("generating JWT: %w", err)
	}

	tok, resp, err := c.newAPIClient("Bearer", jwtToken).Apps.CreateInstallationToken(ctx, c.installationID, nil)
	if err != nil {
		return "", apiError("create installation token", resp, err)
	}

	c.token = tok.GetToken()
	c.expiresAt = tok.GetExpiresAt().Time
	return c.token, nil
}

// GetInstallationClient returns a go-github client authenticated with an
// installation token.
func (c *Client) GetInstallationClient(ctx context.Context) (*gh.Client, error) {
	token, err := c.installationToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.newAPIClient("token", token), nil
}

type tokenTransport struct {
	scheme string
	token  string
	base   http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", t.scheme+" "+t.token)
	return t.base.RoundTrip(req2)
}

// ParseRepo extracts owner and repository from a GitHub clone URL.
func ParseRepo(raw string) (owner, repo string, err error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "git@"):
		if i := strings.Index(s, ":"); i >= 0 {
			s = s[i+1:]
		}
	default:
		u, perr := url.Parse(s)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("invalid repository URL %q", raw)
		}
		s = u.Path
	}
	s = strings.TrimSuffix(strings.Trim(s, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository URL %q", raw)
	}
	return parts[0], parts[1], nil
}
