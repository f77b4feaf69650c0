package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	msgmodels "globalreach/internal/message/models"
	msgservice "globalreach/internal/message/service"
	"globalreach/internal/platform/middleware"
	id "globalreach/pkg/domain"
	"globalreach/pkg/requestcontext"
)

// handleWhatsAppVerify answers the Cloud API subscription handshake: Meta
// calls GET with hub.mode=subscribe and expects the challenge echoed back
// when the verify token matches.
func (h *Handler) handleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	cfg := h.channelConfig(r.Context(), id.ChannelWhatsApp)
	if cfg == nil {
		h.reject(w, http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" ||
		subtle.ConstantTimeCompare([]byte(q.Get("hub.verify_token")), []byte(cfg.VerifyToken)) != 1 {
		h.logger.WarnContext(r.Context(), "whatsapp verification rejected")
		h.reject(w, http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// waEventPayload is the Cloud API webhook envelope, trimmed to the fields
// inbound messages and delivery receipts carry.
type waEventPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Image struct {
						MimeType string `json:"mime_type"`
						Link     string `json:"link"`
					} `json:"image"`
				} `json:"messages"`
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Errors []struct {
						Code  int    `json:"code"`
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (h *Handler) handleWhatsAppEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "webhook.whatsapp")
	defer span.End()

	cfg := h.channelConfig(ctx, id.ChannelWhatsApp)
	if cfg == nil {
		h.reject(w, http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, http.StatusBadRequest)
		return
	}

	// signature check on the raw bytes, before any parsing
	if !validSignature(r.Header.Get("X-Hub-Signature-256"), body, cfg.AppSecret) {
		h.logger.WarnContext(ctx, "whatsapp signature rejected",
			"request_id", middleware.GetRequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx))
		h.reject(w, http.StatusUnauthorized)
		return
	}

	var payload waEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// verified but malformed; 200 so Meta does not retry it forever
		h.logger.ErrorContext(ctx, "whatsapp payload unparseable", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var messages, receipts int
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, msg := range value.Messages {
				if h.alreadySeen(ctx, msg.ID) {
					continue
				}
				in := msgservice.InboundMessage{
					Channel:           id.ChannelWhatsApp,
					ProviderMessageID: msg.ID,
					From:              msg.From,
					DisplayName:       names[msg.From],
					Body:              msg.Text.Body,
				}
				if msg.Type == "image" {
					in.MediaType = msg.Image.MimeType
					in.MediaURL = msg.Image.Link
				}
				if _, err := h.messages.RecordInbound(ctx, in); err != nil {
					h.logger.ErrorContext(ctx, "failed to record whatsapp message",
						"provider_message_id", msg.ID, "error", err)
					continue
				}
				messages++
			}

			for _, receipt := range value.Statuses {
				status, err := msgmodels.ParseStatus(receipt.Status)
				if err != nil {
					h.logger.WarnContext(ctx, "unknown whatsapp status",
						"status", receipt.Status, "provider_message_id", receipt.ID)
					continue
				}
				errorCode := ""
				if len(receipt.Errors) > 0 {
					errorCode = receipt.Errors[0].Title
				}
				if err := h.messages.ApplyReceipt(ctx, receipt.ID, status, errorCode); err != nil {
					h.logger.ErrorContext(ctx, "failed to apply whatsapp receipt",
						"provider_message_id", receipt.ID, "error", err)
					continue
				}
				receipts++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("webhook.messages", messages),
		attribute.Int("webhook.receipts", receipts),
	)
	w.WriteHeader(http.StatusOK)
}

// validSignature checks the X-Hub-Signature-256 header: "sha256=" plus the
// hex HMAC-SHA256 of the raw body keyed with the app secret.
func validSignature(header string, body []byte, appSecret string) bool {
	raw, ok := strings.CutPrefix(header, "sha256=")
	if !ok || appSecret == "" {
		return false
	}
	provided, err := hex.DecodeString(raw)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
