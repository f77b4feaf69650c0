// Package channels contains the outbound delivery adapters. Each adapter
// turns a queued message into a provider API call and reports the
// provider-side message id used to correlate later delivery receipts.
package channels

import (
	"context"

	cfgmodels "globalreach/internal/channelcfg/models"
	id "globalreach/pkg/domain"
)

// SendRequest carries everything a sender needs for one delivery.
type SendRequest struct {
	To      string
	Subject string
	Body    string
	// Config is the channel's operational settings (phone number id, SMTP
	// host, ...). Always non-nil and enabled when the service invokes a
	// sender.
	Config *cfgmodels.ChannelConfig
}

// Sender delivers one outbound message on its channel.
type Sender interface {
	Channel() id.Channel
	Send(ctx context.Context, req SendRequest) (providerMessageID string, err error)
}

// TokenSource supplies the bearer token for providers that authenticate
// sends with an OAuth connection (WhatsApp Cloud API via the Meta
// connection).
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}
