package providers

import (
	"context"
	"net/http"
	"net/url"

	dErrors "globalreach/pkg/domain-errors"
)

const googleScopes = "openid email https://www.googleapis.com/auth/gmail.send"

// GoogleProvider drives the Google OAuth 2.0 authorization-code flow.
//
// access_type=offline plus prompt=consent is required or Google only
// returns a refresh token on the account's very first authorization.
type GoogleProvider struct {
	creds      Credentials
	authURL    string
	tokenURL   string
	httpClient *http.Client
}

// GoogleOption configures the provider.
type GoogleOption func(*GoogleProvider)

// WithGoogleEndpoints overrides the Google endpoints (tests).
func WithGoogleEndpoints(authURL, tokenURL string) GoogleOption {
	return func(p *GoogleProvider) {
		p.authURL = authURL
		p.tokenURL = tokenURL
	}
}

// WithGoogleHTTPClient overrides the HTTP client.
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(p *GoogleProvider) { p.httpClient = c }
}

// NewGoogle creates the provider.
func NewGoogle(creds Credentials, opts ...GoogleOption) (*GoogleProvider, error) {
	if !creds.configured() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "google client credentials are not configured")
	}
	p := &GoogleProvider{
		creds:      creds,
		authURL:    "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:   "https://oauth2.googleapis.com/token",
		httpClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthCodeURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", p.creds.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", googleScopes)
	q.Set("state", state)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	return p.authURL + "?" + q.Encode()
}

func (p *GoogleProvider) Exchange(ctx context.Context, code, redirectURI string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	return postForm(ctx, p.httpClient, p.tokenURL, form)
}

func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return postForm(ctx, p.httpClient, p.tokenURL, form)
}
