package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	dErrors "globalreach/pkg/domain-errors"
)

// Microsoft uses the identity platform v2.0 endpoints. The offline_access
// scope is what makes Azure AD return a refresh token.
const microsoftScopes = "offline_access openid email https://graph.microsoft.com/Mail.Send"

// MicrosoftProvider drives the Azure AD v2.0 authorization-code flow.
type MicrosoftProvider struct {
	creds      Credentials
	tenant     string
	baseURL    string
	httpClient *http.Client
}

// MicrosoftOption configures the provider.
type MicrosoftOption func(*MicrosoftProvider)

// WithMicrosoftBaseURL overrides login.microsoftonline.com (tests).
func WithMicrosoftBaseURL(u string) MicrosoftOption {
	return func(p *MicrosoftProvider) { p.baseURL = u }
}

// WithMicrosoftHTTPClient overrides the HTTP client.
func WithMicrosoftHTTPClient(c *http.Client) MicrosoftOption {
	return func(p *MicrosoftProvider) { p.httpClient = c }
}

// NewMicrosoft creates the provider. tenant is the directory to sign in
// against; "common" accepts any work or personal account.
func NewMicrosoft(creds Credentials, tenant string, opts ...MicrosoftOption) (*MicrosoftProvider, error) {
	if !creds.configured() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "microsoft client credentials are not configured")
	}
	if tenant == "" {
		tenant = "common"
	}
	p := &MicrosoftProvider{
		creds:      creds,
		tenant:     tenant,
		baseURL:    "https://login.microsoftonline.com",
		httpClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *MicrosoftProvider) Name() string { return "microsoft" }

func (p *MicrosoftProvider) AuthCodeURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", p.creds.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("response_mode", "query")
	q.Set("scope", microsoftScopes)
	q.Set("state", state)
	return fmt.Sprintf("%s/%s/oauth2/v2.0/authorize?%s", p.baseURL, p.tenant, q.Encode())
}

func (p *MicrosoftProvider) Exchange(ctx context.Context, code, redirectURI string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("scope", microsoftScopes)
	return postForm(ctx, p.httpClient, p.tokenURL(), form)
}

func (p *MicrosoftProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", microsoftScopes)
	return postForm(ctx, p.httpClient, p.tokenURL(), form)
}

func (p *MicrosoftProvider) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.baseURL, p.tenant)
}
