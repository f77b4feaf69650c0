package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgmodels "globalreach/internal/channelcfg/models"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(context.Context) (string, error) { return s.token, s.err }

func waConfig() *cfgmodels.ChannelConfig {
	return &cfgmodels.ChannelConfig{
		Channel:       id.ChannelWhatsApp,
		Enabled:       true,
		VerifyToken:   "vt",
		AppSecret:     "secret",
		PhoneNumberID: "15550001111",
	}
}

func TestWhatsAppSenderSend(t *testing.T) {
	var gotAuth string
	var gotPayload waSendPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/15550001111/messages", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.HBgL"}]}`))
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(staticTokens{token: "tok-123"}, WithGraphBaseURL(srv.URL))

	wamid, err := sender.Send(context.Background(), SendRequest{
		To:     "8613800000000",
		Body:   "hello from the trade desk",
		Config: waConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.HBgL", wamid)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "whatsapp", gotPayload.MessagingProduct)
	assert.Equal(t, "text", gotPayload.Type)
	assert.Equal(t, "8613800000000", gotPayload.To)
	assert.Equal(t, "hello from the trade desk", gotPayload.Text.Body)
}

func TestWhatsAppSenderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(staticTokens{token: "expired"}, WithGraphBaseURL(srv.URL))

	_, err := sender.Send(context.Background(), SendRequest{To: "861380", Body: "hi", Config: waConfig()})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Contains(t, err.Error(), "Invalid OAuth access token")
}

func TestWhatsAppSenderTokenFailure(t *testing.T) {
	sender := NewWhatsAppSender(staticTokens{err: errors.New("no meta connection")})

	_, err := sender.Send(context.Background(), SendRequest{To: "861380", Body: "hi", Config: waConfig()})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestEmailSenderSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	sender := newEmailSenderWithTransport(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	})

	cfg := &cfgmodels.ChannelConfig{
		Channel:      id.ChannelEmail,
		Enabled:      true,
		SMTPHost:     "smtp.example.com",
		SMTPPort:     2525,
		SMTPUsername: "mailer",
		SMTPPassword: "hunter2",
		FromAddress:  "sales@globalreach.example",
	}

	msgID, err := sender.Send(context.Background(), SendRequest{
		To:      "buyer@importer.example",
		Subject: "Quotation follow-up",
		Body:    "Dear buyer,\nplease find our offer attached.",
		Config:  cfg,
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "sales@globalreach.example", gotFrom)
	assert.Equal(t, []string{"buyer@importer.example"}, gotTo)
	assert.True(t, strings.HasPrefix(msgID, "<"))
	assert.True(t, strings.HasSuffix(msgID, "@globalreach.example>"))

	raw := string(gotMsg)
	assert.Contains(t, raw, "To: buyer@importer.example\r\n")
	assert.Contains(t, raw, "Subject: Quotation follow-up\r\n")
	assert.Contains(t, raw, "Message-ID: "+msgID+"\r\n")
	assert.Contains(t, raw, "\r\n\r\nDear buyer,")
}

func TestEmailSenderDefaultsPort(t *testing.T) {
	var gotAddr string
	sender := newEmailSenderWithTransport(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		return nil
	})

	cfg := &cfgmodels.ChannelConfig{
		Channel:     id.ChannelEmail,
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "sales@globalreach.example",
	}
	_, err := sender.Send(context.Background(), SendRequest{To: "x@y.example", Body: "hi", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
}

func TestEmailSenderIncompleteConfig(t *testing.T) {
	sender := NewEmailSender()
	_, err := sender.Send(context.Background(), SendRequest{
		To:     "x@y.example",
		Body:   "hi",
		Config: &cfgmodels.ChannelConfig{Channel: id.ChannelEmail},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestEmailSenderRelayFailure(t *testing.T) {
	sender := newEmailSenderWithTransport(func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	})
	cfg := &cfgmodels.ChannelConfig{
		Channel:     id.ChannelEmail,
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "sales@globalreach.example",
	}
	_, err := sender.Send(context.Background(), SendRequest{To: "x@y.example", Body: "hi", Config: cfg})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}
