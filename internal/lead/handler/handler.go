// Package handler exposes the lead REST surface.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"globalreach/internal/lead/models"
	"globalreach/internal/lead/service"
	"globalreach/internal/lead/store"
	"globalreach/internal/platform/middleware"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/httputil"
)

// Service defines the interface for lead operations.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Lead, error)
	Get(ctx context.Context, leadID id.LeadID) (*models.Lead, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Lead, error)
	Update(ctx context.Context, leadID id.LeadID, req service.UpdateRequest) (*models.Lead, error)
	Advance(ctx context.Context, leadID id.LeadID, next models.LeadStatus) (*models.Lead, error)
	Delete(ctx context.Context, leadID id.LeadID) error
}

// Handler handles /api/leads endpoints.
type Handler struct {
	logger       *slog.Logger
	leads        Service
	jwtValidator middleware.JWTValidator
}

// New creates a lead Handler.
func New(leads Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, leads: leads, jwtValidator: jwtValidator}
}

// Register registers the lead routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.RequestTime)
	api.Use(middleware.Timeout(15 * time.Second))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	api.Post("/", h.handleCreate)
	api.Get("/", h.handleList)
	api.Get("/{id}", h.handleGet)
	api.Patch("/{id}", h.handleUpdate)
	api.Post("/{id}/advance", h.handleAdvance)
	api.Delete("/{id}", h.handleDelete)

	r.Mount("/api/leads", api)
}

type createRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Channel string `json:"channel"`
	Source  string `json:"source"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	channel, err := id.ParseChannel(req.Channel)
	if err != nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", req.Channel))
		return
	}

	lead, err := h.leads.Create(r.Context(), service.CreateRequest{
		Name:    req.Name,
		Company: req.Company,
		Country: req.Country,
		Phone:   req.Phone,
		Email:   req.Email,
		Channel: channel,
		Source:  req.Source,
	})
	if err != nil {
		h.logError(r, "create lead", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, lead)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		parsed, err := models.ParseLeadStatus(status)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Status = parsed
	}
	if channel := q.Get("channel"); channel != "" {
		parsed, err := id.ParseChannel(channel)
		if err != nil {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", channel))
			return
		}
		filter.Channel = parsed
	}
	if limit := q.Get("limit"); limit != "" {
		filter.Limit, _ = strconv.Atoi(limit)
	}
	if offset := q.Get("offset"); offset != "" {
		filter.Offset, _ = strconv.Atoi(offset)
	}

	leads, err := h.leads.List(r.Context(), filter)
	if err != nil {
		h.logError(r, "list leads", err)
		httputil.WriteError(w, err)
		return
	}
	if leads == nil {
		leads = []*models.Lead{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	leadID, ok := h.leadID(w, r)
	if !ok {
		return
	}
	lead, err := h.leads.Get(r.Context(), leadID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	leadID, ok := h.leadID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Company *string `json:"company"`
		Country *string `json:"country"`
		Phone   *string `json:"phone"`
		Email   *string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	lead, err := h.leads.Update(r.Context(), leadID, service.UpdateRequest{
		Name:    req.Name,
		Company: req.Company,
		Country: req.Country,
		Phone:   req.Phone,
		Email:   req.Email,
	})
	if err != nil {
		h.logError(r, "update lead", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	leadID, ok := h.leadID(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	next, err := models.ParseLeadStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	lead, err := h.leads.Advance(r.Context(), leadID, next)
	if err != nil {
		h.logError(r, "advance lead", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	leadID, ok := h.leadID(w, r)
	if !ok {
		return
	}
	if err := h.leads.Delete(r.Context(), leadID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) leadID(w http.ResponseWriter, r *http.Request) (id.LeadID, bool) {
	leadID, err := id.ParseLeadID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lead id"))
		return id.LeadID{}, false
	}
	return leadID, true
}

func (h *Handler) logError(r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "lead operation failed",
			"op", op,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
	}
}
