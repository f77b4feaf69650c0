// Package providers implements the OAuth 2.0 authorization-code flow
// against the three supported identity providers. Each provider has its
// own endpoint shapes and quirks, so each gets its own adapter instead of
// a single parameterized client.
package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "globalreach/pkg/domain-errors"
)

// Token is the normalized result of a code exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       string
	ExpiresAt    time.Time
	// AccountID is filled when the provider returns an identity hint
	// alongside the token (Microsoft and Google id_token claims are not
	// parsed; the hint comes from the token response itself when present).
	AccountID string
}

// Provider is one OAuth identity provider.
type Provider interface {
	Name() string
	// AuthCodeURL builds the browser redirect that starts the flow.
	AuthCodeURL(state, redirectURI string) string
	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code, redirectURI string) (*Token, error)
	// Refresh obtains a new access token. Providers without refresh
	// tokens return a coded invariant error.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// Credentials is one provider's client registration.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (c Credentials) configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// tokenResponse is the wire shape all three providers share for token
// grants, modulo which fields they fill.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (t tokenResponse) normalize(now time.Time) *Token {
	tok := &Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Scopes:       t.Scope,
	}
	if t.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return tok
}

// postForm submits a form-encoded token grant and decodes the response.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "token endpoint unreachable")
	}
	defer resp.Body.Close()
	return decodeTokenResponse(resp)
}

// getToken fetches a token grant passed as query parameters (Meta style).
func getToken(ctx context.Context, client *http.Client, endpoint string, query url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build token request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "token endpoint unreachable")
	}
	defer resp.Body.Close()
	return decodeTokenResponse(resp)
}

func decodeTokenResponse(resp *http.Response) (*Token, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr tokenError
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "token grant rejected: %s: %s",
			apiErr.Error, apiErr.ErrorDescription)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "decode token response")
	}
	if parsed.AccessToken == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token response missing access token")
	}
	return parsed.normalize(time.Now()), nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
