// Package handler exposes the OAuth connect and callback surface.
//
// The callback routes are browser-facing: providers redirect the
// operator's browser there, so they answer with a small HTML page rather
// than JSON and carry no bearer auth. The state parameter is the only
// credential a callback needs.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"globalreach/internal/oauth/models"
	"globalreach/internal/platform/middleware"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/httputil"
)

// Service defines the interface for OAuth operations.
type Service interface {
	Connect(ctx context.Context, provider string) (authURL string, err error)
	Callback(ctx context.Context, state, code string) (*models.Connection, error)
	Refresh(ctx context.Context, connectionID id.ConnectionID) (*models.Connection, error)
	List(ctx context.Context) ([]*models.Connection, error)
	Disconnect(ctx context.Context, connectionID id.ConnectionID) error
}

// Handler handles /api/oauth endpoints.
type Handler struct {
	logger       *slog.Logger
	oauth        Service
	jwtValidator middleware.JWTValidator
}

// New creates an OAuth Handler.
func New(oauth Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, oauth: oauth, jwtValidator: jwtValidator}
}

// Register registers the OAuth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.RequestTime)
	api.Use(middleware.Timeout(30 * time.Second))

	// browser-facing, no bearer auth. Providers were registered with
	// either the shared callback or a per-provider variant; both land
	// in the same flow because the state identifies the provider.
	api.Get("/callback", h.handleCallback)
	api.Get("/callback/{provider}", h.handleCallback)

	api.Group(func(authed chi.Router) {
		authed.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		authed.Get("/{provider}/connect", h.handleConnect)
		authed.Get("/connections", h.handleListConnections)
		authed.Post("/connections/{id}/refresh", h.handleRefresh)
		authed.Delete("/connections/{id}", h.handleDisconnect)
	})

	r.Mount("/api/oauth", api)
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.oauth.Connect(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		h.logError(r, "connect", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		h.logger.WarnContext(r.Context(), "oauth callback denied",
			"error", errCode, "description", q.Get("error_description"))
		writeCallbackPage(w, http.StatusBadRequest,
			fmt.Sprintf("Authorization was not completed (%s). You can close this window and try again.", errCode))
		return
	}

	conn, err := h.oauth.Callback(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		h.logError(r, "callback", err)
		writeCallbackPage(w, dErrors.ToHTTPStatus(dErrors.CodeOf(err)),
			"Authorization failed. You can close this window and try again.")
		return
	}

	writeCallbackPage(w, http.StatusOK,
		fmt.Sprintf("%s account connected. You can close this window.", conn.Provider))
}

func (h *Handler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.oauth.List(r.Context())
	if err != nil {
		h.logError(r, "list connections", err)
		httputil.WriteError(w, err)
		return
	}
	if conns == nil {
		conns = []*models.Connection{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	connectionID, ok := h.connectionID(w, r)
	if !ok {
		return
	}
	conn, err := h.oauth.Refresh(r.Context(), connectionID)
	if err != nil {
		h.logError(r, "refresh connection", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conn)
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	connectionID, ok := h.connectionID(w, r)
	if !ok {
		return
	}
	if err := h.oauth.Disconnect(r.Context(), connectionID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) connectionID(w http.ResponseWriter, r *http.Request) (id.ConnectionID, bool) {
	connectionID, err := id.ParseConnectionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid connection id"))
		return id.ConnectionID{}, false
	}
	return connectionID, true
}

func writeCallbackPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!DOCTYPE html><html><body><p>%s</p></body></html>", message)
}

func (h *Handler) logError(r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "oauth operation failed",
			"op", op,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
	}
}
