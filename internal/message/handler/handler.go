// Package handler exposes the message REST surface.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"globalreach/internal/message/models"
	"globalreach/internal/message/service"
	"globalreach/internal/platform/middleware"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/httputil"
)

// Service defines the interface for message operations.
type Service interface {
	Send(ctx context.Context, req service.SendRequest) (*models.Message, error)
	Get(ctx context.Context, messageID id.MessageID) (*models.Message, error)
	ListByLead(ctx context.Context, leadID id.LeadID, limit int) ([]*models.Message, error)
}

// Handler handles /api/messages endpoints.
type Handler struct {
	logger       *slog.Logger
	messages     Service
	jwtValidator middleware.JWTValidator
}

// New creates a message Handler.
func New(messages Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, messages: messages, jwtValidator: jwtValidator}
}

// Register registers the message routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.RequestTime)
	api.Use(middleware.Timeout(30 * time.Second))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	api.Post("/", h.handleSend)
	api.Get("/", h.handleList)
	api.Get("/{id}", h.handleGet)

	r.Mount("/api/messages", api)
}

type sendRequest struct {
	LeadID  string `json:"lead_id"`
	Channel string `json:"channel"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	leadID, err := id.ParseLeadID(req.LeadID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lead id"))
		return
	}

	var channel id.Channel
	if req.Channel != "" {
		channel, err = id.ParseChannel(req.Channel)
		if err != nil {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", req.Channel))
			return
		}
	}

	msg, err := h.messages.Send(r.Context(), service.SendRequest{
		LeadID:  leadID,
		Channel: channel,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		h.logError(r, "send message", err)
		// delivery failure still produced a failed row the operator can
		// inspect; surface the row alongside the error status
		if msg != nil {
			httputil.WriteJSON(w, dErrors.ToHTTPStatus(dErrors.CodeOf(err)), map[string]any{
				"error":   dErrors.DescriptionOf(err),
				"message": msg,
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leadID, err := id.ParseLeadID(q.Get("lead_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "lead_id query parameter is required"))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	msgs, err := h.messages.ListByLead(r.Context(), leadID, limit)
	if err != nil {
		h.logError(r, "list messages", err)
		httputil.WriteError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	messageID, err := id.ParseMessageID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid message id"))
		return
	}
	msg, err := h.messages.Get(r.Context(), messageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}

func (h *Handler) logError(r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "message operation failed",
			"op", op,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
	}
}
