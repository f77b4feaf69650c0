// Package handler exposes the admin REST surface for channel configs.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"globalreach/internal/channelcfg/models"
	"globalreach/internal/channelcfg/service"
	"globalreach/internal/platform/middleware"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/httputil"
)

// Handler handles /admin/channels endpoints.
type Handler struct {
	logger         *slog.Logger
	configs        *service.Service
	adminTokenHash string
}

// New creates a channel config Handler.
func New(configs *service.Service, logger *slog.Logger, adminTokenHash string) *Handler {
	return &Handler{logger: logger, configs: configs, adminTokenHash: adminTokenHash}
}

// Register registers the admin channel routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	admin := chi.NewRouter()
	admin.Use(middleware.Recovery(h.logger))
	admin.Use(middleware.RequestID)
	admin.Use(middleware.Logger(h.logger))
	admin.Use(middleware.Timeout(15 * time.Second))
	admin.Use(middleware.ContentTypeJSON)
	admin.Use(middleware.RequireAdmin(h.adminTokenHash, h.logger))
	admin.Post("/", h.handleCreate)
	admin.Get("/", h.handleList)
	admin.Get("/{id}", h.handleGet)
	admin.Put("/{id}", h.handleUpdate)
	admin.Delete("/{id}", h.handleDelete)

	r.Mount("/admin/channels", admin)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var cfg models.ChannelConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.configs.Create(r.Context(), &cfg)
	if err != nil {
		h.logError(r, "create channel config", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created.Redacted())
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.configs.List(r.Context())
	if err != nil {
		h.logError(r, "list channel configs", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]models.ChannelConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, cfg.Redacted())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"channels": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	configID, err := id.ParseChannelConfigID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid config id"))
		return
	}
	cfg, err := h.configs.Get(r.Context(), configID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg.Redacted())
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	configID, err := id.ParseChannelConfigID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid config id"))
		return
	}

	var cfg models.ChannelConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	cfg.ID = configID

	updated, err := h.configs.Update(r.Context(), &cfg)
	if err != nil {
		h.logError(r, "update channel config", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated.Redacted())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	configID, err := id.ParseChannelConfigID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid config id"))
		return
	}
	if err := h.configs.Delete(r.Context(), configID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "channel config operation failed",
			"op", op,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
	}
}
