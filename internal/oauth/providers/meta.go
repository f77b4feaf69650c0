package providers

import (
	"context"
	"net/http"
	"net/url"

	dErrors "globalreach/pkg/domain-errors"
)

const metaScopes = "whatsapp_business_messaging,whatsapp_business_management,business_management"

// MetaProvider drives the Facebook Login flow that backs WhatsApp Cloud
// API access.
//
// Meta never issues refresh tokens. Instead the short-lived user token is
// traded for a long-lived one (about 60 days) via the fb_exchange_token
// grant, which is what Refresh does here with the stored access token.
type MetaProvider struct {
	creds      Credentials
	dialogURL  string
	graphURL   string
	httpClient *http.Client
}

// MetaOption configures the provider.
type MetaOption func(*MetaProvider)

// WithMetaEndpoints overrides the Facebook endpoints (tests).
func WithMetaEndpoints(dialogURL, graphURL string) MetaOption {
	return func(p *MetaProvider) {
		p.dialogURL = dialogURL
		p.graphURL = graphURL
	}
}

// WithMetaHTTPClient overrides the HTTP client.
func WithMetaHTTPClient(c *http.Client) MetaOption {
	return func(p *MetaProvider) { p.httpClient = c }
}

// NewMeta creates the provider.
func NewMeta(creds Credentials, opts ...MetaOption) (*MetaProvider, error) {
	if !creds.configured() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "meta app credentials are not configured")
	}
	p := &MetaProvider{
		creds:      creds,
		dialogURL:  "https://www.facebook.com/v19.0/dialog/oauth",
		graphURL:   "https://graph.facebook.com/v19.0",
		httpClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *MetaProvider) Name() string { return "meta" }

func (p *MetaProvider) AuthCodeURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", p.creds.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", metaScopes)
	q.Set("response_type", "code")
	return p.dialogURL + "?" + q.Encode()
}

// Exchange trades the code for a short-lived user token, then immediately
// upgrades it to a long-lived one so sends keep working between logins.
func (p *MetaProvider) Exchange(ctx context.Context, code, redirectURI string) (*Token, error) {
	q := url.Values{}
	q.Set("client_id", p.creds.ClientID)
	q.Set("client_secret", p.creds.ClientSecret)
	q.Set("redirect_uri", redirectURI)
	q.Set("code", code)

	short, err := getToken(ctx, p.httpClient, p.graphURL+"/oauth/access_token", q)
	if err != nil {
		return nil, err
	}

	long, err := p.exchangeLongLived(ctx, short.AccessToken)
	if err != nil {
		// the short-lived token still works for an hour or two
		return short, nil
	}
	return long, nil
}

// Refresh re-runs the long-lived exchange on the current access token.
func (p *MetaProvider) Refresh(ctx context.Context, accessToken string) (*Token, error) {
	if accessToken == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "meta connection has no token to extend")
	}
	return p.exchangeLongLived(ctx, accessToken)
}

func (p *MetaProvider) exchangeLongLived(ctx context.Context, accessToken string) (*Token, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", p.creds.ClientID)
	q.Set("client_secret", p.creds.ClientSecret)
	q.Set("fb_exchange_token", accessToken)
	return getToken(ctx, p.httpClient, p.graphURL+"/oauth/access_token", q)
}
