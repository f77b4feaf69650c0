// Package handler receives provider webhooks.
//
// Verification happens on the raw request before any payload parsing.
// Once a payload is verified, the receiver answers 200 even when
// processing fails: providers treat non-2xx as a delivery failure and
// retry, and a poison event would otherwise be redelivered forever.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	cfgmodels "globalreach/internal/channelcfg/models"
	msgmodels "globalreach/internal/message/models"
	msgservice "globalreach/internal/message/service"
	"globalreach/internal/platform/middleware"
	"globalreach/internal/webhook/dedupe"
	id "globalreach/pkg/domain"
)

// maxBodyBytes caps webhook payloads; provider batches stay far below it.
const maxBodyBytes = 1 << 20

// Messages is the slice of the message service webhook processing needs.
type Messages interface {
	RecordInbound(ctx context.Context, in msgservice.InboundMessage) (*msgmodels.Message, error)
	ApplyReceipt(ctx context.Context, providerMessageID string, status msgmodels.Status, errorCode string) error
}

// Configs resolves channel settings (verify token, app secret).
type Configs interface {
	GetByChannel(ctx context.Context, channel id.Channel) (*cfgmodels.ChannelConfig, error)
}

// Handler handles /webhooks endpoints.
type Handler struct {
	logger   *slog.Logger
	messages Messages
	configs  Configs
	dedupe   dedupe.Deduper
	tracer   trace.Tracer
}

// New creates a webhook Handler.
func New(messages Messages, configs Configs, deduper dedupe.Deduper, logger *slog.Logger) *Handler {
	if deduper == nil {
		deduper = dedupe.NewInMemory()
	}
	return &Handler{
		logger:   logger,
		messages: messages,
		configs:  configs,
		dedupe:   deduper,
		tracer:   otel.Tracer("globalreach/webhook"),
	}
}

// Register registers the webhook routes with the chi router. No bearer
// auth here: providers authenticate with their own verification schemes.
func (h *Handler) Register(r chi.Router) {
	hooks := chi.NewRouter()
	hooks.Use(middleware.Recovery(h.logger))
	hooks.Use(middleware.RequestID)
	hooks.Use(middleware.ClientMetadata)
	hooks.Use(middleware.Logger(h.logger))
	hooks.Use(middleware.RequestTime)
	hooks.Use(middleware.Timeout(30 * time.Second))

	hooks.Get("/whatsapp", h.handleWhatsAppVerify)
	hooks.Post("/whatsapp", h.handleWhatsAppEvent)
	hooks.Get("/wechat", h.handleWeChatVerify)
	hooks.Post("/wechat", h.handleWeChatEvent)

	r.Mount("/webhooks", hooks)
}

// channelConfig loads the channel's settings; nil when the channel is not
// configured or disabled, in which case the caller rejects the request.
func (h *Handler) channelConfig(ctx context.Context, channel id.Channel) *cfgmodels.ChannelConfig {
	cfg, err := h.configs.GetByChannel(ctx, channel)
	if err != nil || !cfg.Enabled {
		return nil
	}
	return cfg
}

// alreadySeen marks the event id, failing open: when the dedupe backend
// is down a duplicate message beats a dropped one.
func (h *Handler) alreadySeen(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	seen, err := h.dedupe.Seen(ctx, key)
	if err != nil {
		h.logger.WarnContext(ctx, "dedupe check failed", "key", key, "error", err)
		return false
	}
	return seen
}

func (h *Handler) reject(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}
