package service

import (
	"context"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"globalreach/internal/oauth/providers"
	"globalreach/internal/oauth/store"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/requestcontext"
)

// fakeProvider counts exchanges and refreshes without hitting the wire.
type fakeProvider struct {
	name       string
	exchanges  int
	refreshes  int
	lastGrant  string
	token      providers.Token
	exchangeFn func(code string) (*providers.Token, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state, redirectURI string) string {
	return "https://idp.example/authorize?state=" + url.QueryEscape(state) +
		"&redirect_uri=" + url.QueryEscape(redirectURI)
}

func (f *fakeProvider) Exchange(_ context.Context, code, _ string) (*providers.Token, error) {
	f.exchanges++
	if f.exchangeFn != nil {
		return f.exchangeFn(code)
	}
	tok := f.token
	return &tok, nil
}

func (f *fakeProvider) Refresh(_ context.Context, grant string) (*providers.Token, error) {
	f.refreshes++
	f.lastGrant = grant
	tok := f.token
	tok.AccessToken = "refreshed-" + tok.AccessToken
	return &tok, nil
}

type OAuthServiceSuite struct {
	suite.Suite
	provider *fakeProvider
	states   *store.InMemoryState
	conns    *store.InMemory
	service  *Service
	ctx      context.Context
}

func TestOAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(OAuthServiceSuite))
}

func (s *OAuthServiceSuite) SetupTest() {
	s.provider = &fakeProvider{
		name: "microsoft",
		token: providers.Token{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			TokenType:    "Bearer",
			ExpiresAt:    time.Date(2026, 8, 3, 13, 0, 0, 0, time.UTC),
		},
	}
	s.states = store.NewInMemoryState()
	s.conns = store.NewInMemory()

	var err error
	s.service, err = New([]providers.Provider{s.provider}, s.conns, s.states,
		"https://app.example/api/oauth/callback", 10*time.Minute,
		slog.New(slog.DiscardHandler))
	s.Require().NoError(err)

	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC))
}

func (s *OAuthServiceSuite) startFlow() string {
	authURL, err := s.service.Connect(s.ctx, "microsoft")
	s.Require().NoError(err)
	parsed, err := url.Parse(authURL)
	s.Require().NoError(err)
	state := parsed.Query().Get("state")
	s.Require().NotEmpty(state)
	return state
}

func (s *OAuthServiceSuite) TestConnectUnknownProvider() {
	_, err := s.service.Connect(s.ctx, "yahoo")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *OAuthServiceSuite) TestCallbackStoresConnection() {
	state := s.startFlow()

	conn, err := s.service.Callback(s.ctx, state, "code-1")
	s.Require().NoError(err)
	s.Equal("microsoft", conn.Provider)
	s.Equal("at-1", conn.AccessToken)
	s.Equal("rt-1", conn.RefreshToken)
	s.Equal(1, s.provider.exchanges)

	stored, err := s.conns.FindByProvider(s.ctx, "microsoft")
	s.Require().NoError(err)
	s.Equal(conn.ID, stored.ID)
}

func (s *OAuthServiceSuite) TestCallbackStateIsSingleUse() {
	state := s.startFlow()

	_, err := s.service.Callback(s.ctx, state, "code-1")
	s.Require().NoError(err)

	_, err = s.service.Callback(s.ctx, state, "code-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(1, s.provider.exchanges, "replayed state must not reach the provider")
}

func (s *OAuthServiceSuite) TestCallbackUnknownState() {
	_, err := s.service.Callback(s.ctx, "never-issued", "code-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *OAuthServiceSuite) TestReconnectReplacesGrant() {
	state := s.startFlow()
	first, err := s.service.Callback(s.ctx, state, "code-1")
	s.Require().NoError(err)

	s.provider.token.AccessToken = "at-2"
	state = s.startFlow()
	second, err := s.service.Callback(s.ctx, state, "code-2")
	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)

	conns, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(conns, 1)
	s.Equal("at-2", conns[0].AccessToken)
}

func (s *OAuthServiceSuite) TestAccessTokenRefreshesNearExpiry() {
	state := s.startFlow()
	_, err := s.service.Callback(s.ctx, state, "code-1")
	s.Require().NoError(err)

	// well before expiry: stored token is returned as is
	token, err := s.service.AccessToken(s.ctx, "microsoft")
	s.Require().NoError(err)
	s.Equal("at-1", token)
	s.Zero(s.provider.refreshes)

	// one minute before expiry: inside the safety margin
	lateCtx := requestcontext.WithTime(context.Background(), time.Date(2026, 8, 3, 12, 59, 0, 0, time.UTC))
	token, err = s.service.AccessToken(lateCtx, "microsoft")
	s.Require().NoError(err)
	s.Equal("refreshed-at-1", token)
	s.Equal(1, s.provider.refreshes)
	s.Equal("rt-1", s.provider.lastGrant)
}

func (s *OAuthServiceSuite) TestAccessTokenWithoutConnection() {
	_, err := s.service.AccessToken(s.ctx, "microsoft")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *OAuthServiceSuite) TestRefreshWithoutRefreshTokenUsesAccessToken() {
	// Meta style grant: no refresh token
	s.provider.token.RefreshToken = ""
	state := s.startFlow()
	conn, err := s.service.Callback(s.ctx, state, "code-1")
	s.Require().NoError(err)

	_, err = s.service.Refresh(s.ctx, conn.ID)
	s.Require().NoError(err)
	s.Equal("at-1", s.provider.lastGrant)
}

func (s *OAuthServiceSuite) TestDisconnect() {
	state := s.startFlow()
	conn, err := s.service.Callback(s.ctx, state, "code-1")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Disconnect(s.ctx, conn.ID))

	err = s.service.Disconnect(s.ctx, conn.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.AccessToken(s.ctx, "microsoft")
	s.Error(err)
}

func (s *OAuthServiceSuite) TestTokenSource() {
	state := s.startFlow()
	_, err := s.service.Callback(s.ctx, state, "code-1")
	s.Require().NoError(err)

	source := s.service.TokenSource("microsoft")
	token, err := source.AccessToken(s.ctx)
	s.Require().NoError(err)
	s.Equal("at-1", token)
}
