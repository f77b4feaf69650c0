package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppSender delivers text messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// WhatsAppOption configures the sender.
type WhatsAppOption func(*WhatsAppSender)

// WithGraphBaseURL overrides the Graph API endpoint (tests).
func WithGraphBaseURL(url string) WhatsAppOption {
	return func(s *WhatsAppSender) { s.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WhatsAppOption {
	return func(s *WhatsAppSender) { s.httpClient = client }
}

// NewWhatsAppSender creates a Cloud API sender authenticated by tokens.
func NewWhatsAppSender(tokens TokenSource, opts ...WhatsAppOption) *WhatsAppSender {
	s := &WhatsAppSender{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultGraphBaseURL,
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WhatsAppSender) Channel() id.Channel { return id.ChannelWhatsApp }

type waSendPayload struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             waSendText `json:"text"`
}

type waSendText struct {
	Body string `json:"body"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type waErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts a text message to /{phone-number-id}/messages and returns the
// wamid the receipts will reference.
func (s *WhatsAppSender) Send(ctx context.Context, req SendRequest) (string, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "whatsapp access token unavailable")
	}

	payload, err := json.Marshal(waSendPayload{
		MessagingProduct: "whatsapp",
		To:               req.To,
		Type:             "text",
		Text:             waSendText{Body: req.Body},
	})
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, req.Config.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build whatsapp request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "whatsapp send failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read whatsapp response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr waErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return "", dErrors.Newf(dErrors.CodeUnavailable,
			"whatsapp send rejected: status %d code %d: %s",
			resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
	}

	var parsed waSendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode whatsapp response: %w", err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", dErrors.New(dErrors.CodeInternal, "whatsapp response missing message id")
	}
	return parsed.Messages[0].ID, nil
}
