// Package handler implements the OAuth callback relay.
//
// Providers demand a stable, registered redirect URL, but the CRM backend
// often runs behind a tunnel or home connection whose public address
// changes. The relay is the stable half: providers call it, and it
// forwards every callback to whatever target the backend last registered.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"globalreach/internal/platform/middleware"
	relaystore "globalreach/internal/relay/store"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/circuit"
	"globalreach/pkg/platform/httputil"
	"globalreach/pkg/platform/sentinel"
)

// probeInterval is how often an open breaker lets one request through to
// test whether the target recovered.
const probeInterval = 30 * time.Second

// Handler handles /relay endpoints.
type Handler struct {
	logger         *slog.Logger
	targets        relaystore.TargetStore
	client         *http.Client
	breaker        *circuit.Breaker
	adminTokenHash string

	mu        sync.Mutex
	lastProbe time.Time
}

// Option configures the Handler.
type Option func(*Handler)

// WithHTTPClient overrides the forwarding client.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) { h.client = client }
}

// WithFailureThreshold sets how many consecutive forwarding failures trip
// the breaker.
func WithFailureThreshold(n int) Option {
	return func(h *Handler) {
		h.breaker = circuit.New("relay-upstream", circuit.WithFailureThreshold(n))
	}
}

// New creates a relay Handler. adminTokenHash guards target registration.
func New(targets relaystore.TargetStore, adminTokenHash string, forwardTimeout time.Duration, logger *slog.Logger, opts ...Option) *Handler {
	if forwardTimeout <= 0 {
		forwardTimeout = 15 * time.Second
	}
	h := &Handler{
		logger:         logger,
		targets:        targets,
		client:         &http.Client{Timeout: forwardTimeout},
		breaker:        circuit.New("relay-upstream"),
		adminTokenHash: adminTokenHash,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the relay routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	relay := chi.NewRouter()
	relay.Use(middleware.Recovery(h.logger))
	relay.Use(middleware.RequestID)
	relay.Use(middleware.Logger(h.logger))
	relay.Use(middleware.RequestTime)

	relay.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireAdmin(h.adminTokenHash, h.logger))
		admin.Put("/target", h.handleSetTarget)
		admin.Get("/target", h.handleGetTarget)
	})

	relay.Get("/oauth/callback", h.handleForward)
	relay.Get("/oauth/callback/{provider}", h.handleForward)
	relay.HandleFunc("/webhooks/{channel}", h.handleForward)

	r.Mount("/relay", relay)
}

type targetRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "url must be absolute http(s)"))
		return
	}

	target := strings.TrimRight(req.URL, "/")
	if err := h.targets.Set(r.Context(), target); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to store relay target", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store target"))
		return
	}

	h.logger.InfoContext(r.Context(), "relay target registered", "target", target)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"url": target})
}

func (h *Handler) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	target, err := h.targets.Get(r.Context())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no target registered"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load target"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"url": target})
}

// handleForward replays the incoming request against the registered
// target: same method, same path under the target base, query string
// passed through byte for byte.
func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	target, err := h.targets.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "no relay target registered"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load target"))
		return
	}

	if h.breaker.IsOpen() && !h.probeDue() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "relay target is unreachable"))
		return
	}

	resp, err := h.forward(ctx, target, r)
	if err != nil {
		if _, change := h.breaker.RecordFailure(); change.Opened {
			h.logger.ErrorContext(ctx, "relay breaker opened", "target", target)
		}
		h.logger.WarnContext(ctx, "relay forward failed",
			"target", target, "path", r.URL.Path, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "relay target is unreachable"))
		return
	}
	defer resp.Body.Close()

	if _, change := h.breaker.RecordSuccess(); change.Closed {
		h.logger.InfoContext(ctx, "relay breaker closed", "target", target)
	}

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (h *Handler) forward(ctx context.Context, target string, r *http.Request) (*http.Response, error) {
	// strip the /relay prefix so /relay/oauth/callback lands on the
	// target's /api/oauth/callback surface
	path := strings.TrimPrefix(r.URL.Path, "/relay")
	if strings.HasPrefix(path, "/oauth/") {
		path = "/api" + path
	}

	forwardURL := target + path
	if r.URL.RawQuery != "" {
		forwardURL += "?" + r.URL.RawQuery
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, forwardURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	for name, values := range r.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("X-Forwarded-Host", r.Host)
	req.Header.Set("X-Forwarded-Proto", forwardedProto(r))

	return h.client.Do(req)
}

// probeDue throttles probing an open breaker to one request per interval.
func (h *Handler) probeDue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if time.Since(h.lastProbe) < probeInterval {
		return false
	}
	h.lastProbe = time.Now()
	return true
}

func forwardedProto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
