package handler

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	msgservice "globalreach/internal/message/service"
	"globalreach/internal/platform/middleware"
	id "globalreach/pkg/domain"
	"globalreach/pkg/requestcontext"
)

// handleWeChatVerify answers the official-account URL verification: the
// platform calls GET with a signature over the shared token and expects
// echostr back verbatim.
func (h *Handler) handleWeChatVerify(w http.ResponseWriter, r *http.Request) {
	cfg := h.channelConfig(r.Context(), id.ChannelWeChat)
	if cfg == nil {
		h.reject(w, http.StatusForbidden)
		return
	}

	q := r.URL.Query()
	if !validWeChatSignature(q.Get("signature"), cfg.VerifyToken, q.Get("timestamp"), q.Get("nonce")) {
		h.logger.WarnContext(r.Context(), "wechat verification rejected")
		h.reject(w, http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("echostr")))
}

// wechatMessage is the XML body the platform posts for incoming messages.
type wechatMessage struct {
	ToUserName   string `xml:"ToUserName"`
	FromUserName string `xml:"FromUserName"`
	CreateTime   int64  `xml:"CreateTime"`
	MsgType      string `xml:"MsgType"`
	Content      string `xml:"Content"`
	PicURL       string `xml:"PicUrl"`
	MsgID        int64  `xml:"MsgId"`
}

func (h *Handler) handleWeChatEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "webhook.wechat")
	defer span.End()

	cfg := h.channelConfig(ctx, id.ChannelWeChat)
	if cfg == nil {
		h.reject(w, http.StatusForbidden)
		return
	}

	// the platform signs every POST with the same query-string scheme as
	// the verification handshake
	q := r.URL.Query()
	if !validWeChatSignature(q.Get("signature"), cfg.VerifyToken, q.Get("timestamp"), q.Get("nonce")) {
		h.logger.WarnContext(ctx, "wechat signature rejected",
			"request_id", middleware.GetRequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx))
		h.reject(w, http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, http.StatusBadRequest)
		return
	}

	var msg wechatMessage
	if err := xml.Unmarshal(body, &msg); err != nil {
		h.logger.ErrorContext(ctx, "wechat payload unparseable", "error", err)
		replySuccess(w)
		return
	}

	span.SetAttributes(attribute.String("webhook.msg_type", msg.MsgType))

	switch msg.MsgType {
	case "text", "image":
	default:
		// subscribe/unsubscribe and other event pushes are acknowledged
		// without creating a message
		replySuccess(w)
		return
	}

	providerMessageID := ""
	if msg.MsgID != 0 {
		providerMessageID = "wechat:" + strconv.FormatInt(msg.MsgID, 10)
	}
	if h.alreadySeen(ctx, providerMessageID) {
		replySuccess(w)
		return
	}

	in := msgservice.InboundMessage{
		Channel:           id.ChannelWeChat,
		ProviderMessageID: providerMessageID,
		From:              msg.FromUserName,
		Body:              msg.Content,
	}
	if msg.MsgType == "image" {
		in.MediaType = "image"
		in.MediaURL = msg.PicURL
	}
	if _, err := h.messages.RecordInbound(ctx, in); err != nil {
		h.logger.ErrorContext(ctx, "failed to record wechat message",
			"provider_message_id", providerMessageID, "error", err)
	}

	replySuccess(w)
}

// replySuccess is the platform's expected acknowledgment; anything else
// triggers a retry and eventually a "service unavailable" notice to the
// sender.
func replySuccess(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("success"))
}

// validWeChatSignature checks SHA1 over the lexicographically sorted
// token, timestamp and nonce.
func validWeChatSignature(signature, token, timestamp, nonce string) bool {
	if signature == "" || token == "" {
		return false
	}
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}
