// Package models defines the Lead aggregate.
package models

import (
	"strings"
	"time"

	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
)

// LeadStatus is the lifecycle state of a lead.
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusContacted    LeadStatus = "contacted"
	LeadStatusQualified    LeadStatus = "qualified"
	LeadStatusDisqualified LeadStatus = "disqualified"
)

// CanTransitionTo enforces the lead lifecycle:
//
//	new → contacted → qualified | disqualified
//
// Qualified and disqualified are terminal; a contacted lead never returns
// to new.
func (s LeadStatus) CanTransitionTo(next LeadStatus) bool {
	switch s {
	case LeadStatusNew:
		return next == LeadStatusContacted
	case LeadStatusContacted:
		return next == LeadStatusQualified || next == LeadStatusDisqualified
	default:
		return false
	}
}

// ParseLeadStatus validates a raw status string.
func ParseLeadStatus(s string) (LeadStatus, error) {
	switch LeadStatus(s) {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusDisqualified:
		return LeadStatus(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown lead status %q", s)
}

// Lead is a trade prospect reachable over one primary channel.
//
// Invariants:
//   - At least one of Phone or Email is set
//   - Channel is a supported value
//   - Status follows the lifecycle above
//   - CreatedAt is immutable after construction
type Lead struct {
	ID      id.LeadID  `json:"id"`
	Name    string     `json:"name"`
	Company string     `json:"company,omitempty"`
	Country string     `json:"country,omitempty"`
	Phone   string     `json:"phone,omitempty"`
	Email   string     `json:"email,omitempty"`
	Channel id.Channel `json:"channel"`
	// Source records where the lead came from: "inbound" for webhook-created
	// leads, otherwise operator-supplied (fair, referral, import, ...).
	Source    string     `json:"source,omitempty"`
	Status    LeadStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewLead constructs a lead in status new, validating invariants.
func NewLead(leadID id.LeadID, name string, channel id.Channel, phone, email string, now time.Time) (*Lead, error) {
	name = strings.TrimSpace(name)
	phone = NormalizePhone(phone)
	email = strings.ToLower(strings.TrimSpace(email))

	if !channel.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", channel)
	}
	if phone == "" && email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lead requires a phone or email")
	}
	if len(name) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lead name must be 256 characters or less")
	}

	return &Lead{
		ID:        leadID,
		Name:      name,
		Phone:     phone,
		Email:     email,
		Channel:   channel,
		Status:    LeadStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Advance moves the lead to the next lifecycle state.
func (l *Lead) Advance(next LeadStatus, now time.Time) error {
	if !l.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeConflict, "lead cannot move from %s to %s", l.Status, next)
	}
	l.Status = next
	l.UpdatedAt = now
	return nil
}

// MarkContacted is a convenience used by the message service when the first
// outbound message goes out. Already-advanced leads are left alone.
func (l *Lead) MarkContacted(now time.Time) {
	if l.Status == LeadStatusNew {
		l.Status = LeadStatusContacted
		l.UpdatedAt = now
	}
}

// NormalizePhone strips spaces, dashes and parens so lookups by phone are
// stable across providers' formatting.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch r {
		case ' ', '-', '(', ')', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
