// Package models defines the channel configuration aggregate.
package models

import (
	"time"

	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
)

// ChannelConfig holds the operational settings for one messaging channel.
//
// Invariants:
//   - Channel is one of the supported values and unique per deployment
//   - WhatsApp requires VerifyToken, AppSecret and PhoneNumberID when enabled
//   - WeChat requires VerifyToken when enabled
//   - Email requires SMTP host and from address when enabled
type ChannelConfig struct {
	ID          id.ChannelConfigID `json:"id"`
	Channel     id.Channel         `json:"channel"`
	Enabled     bool               `json:"enabled"`
	VerifyToken string             `json:"verify_token,omitempty"`
	AppSecret   string             `json:"app_secret,omitempty"`
	// PhoneNumberID is the WhatsApp Cloud API sender id.
	PhoneNumberID string `json:"phone_number_id,omitempty"`

	SMTPHost     string `json:"smtp_host,omitempty"`
	SMTPPort     int    `json:"smtp_port,omitempty"`
	SMTPUsername string `json:"smtp_username,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty"`
	FromAddress  string `json:"from_address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the per-channel requirements above.
func (c *ChannelConfig) Validate() error {
	if !c.Channel.Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", c.Channel)
	}
	if !c.Enabled {
		return nil
	}
	switch c.Channel {
	case id.ChannelWhatsApp:
		if c.VerifyToken == "" || c.AppSecret == "" || c.PhoneNumberID == "" {
			return dErrors.New(dErrors.CodeInvariantViolation,
				"whatsapp channel requires verify_token, app_secret and phone_number_id")
		}
	case id.ChannelWeChat:
		if c.VerifyToken == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "wechat channel requires verify_token")
		}
	case id.ChannelEmail:
		if c.SMTPHost == "" || c.FromAddress == "" {
			return dErrors.New(dErrors.CodeInvariantViolation,
				"email channel requires smtp_host and from_address")
		}
	}
	return nil
}

// Redacted returns a copy safe for API responses: secrets are masked, not
// echoed.
func (c ChannelConfig) Redacted() ChannelConfig {
	if c.AppSecret != "" {
		c.AppSecret = "********"
	}
	if c.SMTPPassword != "" {
		c.SMTPPassword = "********"
	}
	if c.VerifyToken != "" {
		c.VerifyToken = "********"
	}
	return c
}
