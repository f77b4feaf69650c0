// Package models defines the OAuth connection aggregate.
package models

import (
	"time"

	id "globalreach/pkg/domain"
)

// Connection is a stored OAuth grant against one provider. One connection
// per provider; reconnecting replaces the grant.
type Connection struct {
	ID       id.ConnectionID `json:"id"`
	Provider string          `json:"provider"`
	// AccountID is the provider-side account identifier (email or app
	// scoped user id) the grant belongs to.
	AccountID    string    `json:"account_id,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type,omitempty"`
	Scopes       string    `json:"scopes,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the access token needs a refresh, with a safety
// margin so a token never dies mid-request.
func (c *Connection) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt.Add(-2 * time.Minute))
}

// Refreshable reports whether the provider issued a refresh token.
func (c *Connection) Refreshable() bool {
	return c.RefreshToken != ""
}
