// Package service orchestrates the OAuth connect and callback flow and
// keeps stored grants fresh.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"globalreach/internal/oauth/models"
	"globalreach/internal/oauth/providers"
	"globalreach/internal/oauth/store"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/sentinel"
	"globalreach/pkg/requestcontext"
)

// ConnectionStore is the persistence port for OAuth connections.
type ConnectionStore interface {
	Upsert(ctx context.Context, conn *models.Connection) error
	Update(ctx context.Context, conn *models.Connection) error
	FindByID(ctx context.Context, connectionID id.ConnectionID) (*models.Connection, error)
	FindByProvider(ctx context.Context, provider string) (*models.Connection, error)
	List(ctx context.Context) ([]*models.Connection, error)
	Delete(ctx context.Context, connectionID id.ConnectionID) error
}

// Service runs the authorization-code flow against the registered
// providers and hands out fresh access tokens to callers.
type Service struct {
	providers   map[string]providers.Provider
	connections ConnectionStore
	states      store.StateStore
	stateTTL    time.Duration
	redirectURI string
	logger      *slog.Logger
}

// New creates the OAuth Service. redirectURI is the public callback URL
// registered with every provider.
func New(provs []providers.Provider, connections ConnectionStore, states store.StateStore, redirectURI string, stateTTL time.Duration, logger *slog.Logger) (*Service, error) {
	if connections == nil {
		return nil, errors.New("connection store is required")
	}
	if states == nil {
		return nil, errors.New("state store is required")
	}
	if redirectURI == "" {
		return nil, errors.New("redirect URI is required")
	}
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]providers.Provider, len(provs))
	for _, p := range provs {
		byName[p.Name()] = p
	}
	return &Service{
		providers:   byName,
		connections: connections,
		states:      states,
		stateTTL:    stateTTL,
		redirectURI: redirectURI,
		logger:      logger,
	}, nil
}

// Providers lists the registered provider names.
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.providers))
	for name := range s.providers {
		out = append(out, name)
	}
	return out
}

// Connect starts a flow: a random single-use state is stored with a TTL
// and the provider's consent URL is returned for the browser redirect.
func (s *Service) Connect(ctx context.Context, providerName string) (authURL string, err error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return "", err
	}

	state, err := newState()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate state")
	}
	if err := s.states.Put(ctx, state, providerName, s.stateTTL); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store state")
	}
	return provider.AuthCodeURL(state, s.redirectURI), nil
}

// Callback finishes a flow. The state is consumed before the code is
// exchanged, so a replayed callback fails even if the exchange would
// still succeed.
func (s *Service) Callback(ctx context.Context, state, code string) (*models.Connection, error) {
	if state == "" || code == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "state and code are required")
	}

	providerName, err := s.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown or expired state")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "state lookup failed")
	}

	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	token, err := provider.Exchange(ctx, code, s.redirectURI)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	conn := &models.Connection{
		ID:           id.NewConnectionID(),
		Provider:     providerName,
		AccountID:    token.AccountID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scopes:       token.Scopes,
		ExpiresAt:    token.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.connections.Upsert(ctx, conn); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist connection")
	}

	s.logger.InfoContext(ctx, "oauth connection established",
		"provider", providerName, "connection_id", conn.ID, "expires_at", conn.ExpiresAt)
	return conn, nil
}

// AccessToken returns a live access token for the provider, refreshing
// the stored grant when it is near expiry.
func (s *Service) AccessToken(ctx context.Context, providerName string) (string, error) {
	conn, err := s.connections.FindByProvider(ctx, providerName)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.Newf(dErrors.CodeInvariantViolation, "no %s connection; connect the account first", providerName)
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "connection lookup failed")
	}

	if !conn.Expired(requestcontext.Now(ctx)) {
		return conn.AccessToken, nil
	}

	refreshed, err := s.refresh(ctx, conn)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh forces a token refresh on a stored connection.
func (s *Service) Refresh(ctx context.Context, connectionID id.ConnectionID) (*models.Connection, error) {
	conn, err := s.connections.FindByID(ctx, connectionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "connection not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "connection lookup failed")
	}
	return s.refresh(ctx, conn)
}

func (s *Service) refresh(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	provider, err := s.provider(conn.Provider)
	if err != nil {
		return nil, err
	}

	// Meta has no refresh tokens; its Refresh extends the access token
	grant := conn.RefreshToken
	if !conn.Refreshable() {
		grant = conn.AccessToken
	}

	token, err := provider.Refresh(ctx, grant)
	if err != nil {
		s.logger.WarnContext(ctx, "token refresh failed",
			"provider", conn.Provider, "connection_id", conn.ID, "error", err)
		return nil, err
	}

	conn.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		conn.RefreshToken = token.RefreshToken
	}
	if token.Scopes != "" {
		conn.Scopes = token.Scopes
	}
	conn.ExpiresAt = token.ExpiresAt
	conn.UpdatedAt = requestcontext.Now(ctx)

	if err := s.connections.Update(ctx, conn); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist refreshed tokens")
	}
	return conn, nil
}

// List returns the stored connections.
func (s *Service) List(ctx context.Context) ([]*models.Connection, error) {
	conns, err := s.connections.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list connections")
	}
	return conns, nil
}

// Disconnect removes a stored connection.
func (s *Service) Disconnect(ctx context.Context, connectionID id.ConnectionID) error {
	if err := s.connections.Delete(ctx, connectionID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "connection not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete connection")
	}
	return nil
}

// TokenSource binds AccessToken to one provider so senders that need a
// bearer token do not know about the connection registry.
func (s *Service) TokenSource(providerName string) ProviderTokenSource {
	return ProviderTokenSource{svc: s, provider: providerName}
}

// ProviderTokenSource hands out live tokens for a single provider.
type ProviderTokenSource struct {
	svc      *Service
	provider string
}

func (t ProviderTokenSource) AccessToken(ctx context.Context) (string, error) {
	return t.svc.AccessToken(ctx, t.provider)
}

func (s *Service) provider(name string) (providers.Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown provider %q", name)
	}
	return p, nil
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
