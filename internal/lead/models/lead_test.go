package models

import (
	"testing"
	"time"

	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
)

func TestNewLeadRequiresContactHandle(t *testing.T) {
	_, err := NewLead(id.NewLeadID(), "Ada", id.ChannelWhatsApp, "", "", time.Now())
	if err == nil {
		t.Fatalf("expected error for lead without phone or email")
	}
	if !dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		t.Fatalf("expected invariant_violation, got %v", err)
	}
}

func TestNewLeadNormalizesHandles(t *testing.T) {
	lead, err := NewLead(id.NewLeadID(), "Ada", id.ChannelWhatsApp, "+49 170 123-4567", "Ada@Example.COM ", time.Now())
	if err != nil {
		t.Fatalf("NewLead: %v", err)
	}
	if lead.Phone != "+491701234567" {
		t.Errorf("expected normalized phone, got %q", lead.Phone)
	}
	if lead.Email != "ada@example.com" {
		t.Errorf("expected lowercased email, got %q", lead.Email)
	}
	if lead.Status != LeadStatusNew {
		t.Errorf("expected new status, got %s", lead.Status)
	}
}

func TestLeadLifecycle(t *testing.T) {
	now := time.Now()
	lead, err := NewLead(id.NewLeadID(), "Ada", id.ChannelEmail, "", "ada@example.com", now)
	if err != nil {
		t.Fatalf("NewLead: %v", err)
	}

	if err := lead.Advance(LeadStatusQualified, now); err == nil {
		t.Fatalf("expected new → qualified to be rejected")
	}
	if err := lead.Advance(LeadStatusContacted, now); err != nil {
		t.Fatalf("new → contacted: %v", err)
	}
	if err := lead.Advance(LeadStatusNew, now); err == nil {
		t.Fatalf("expected contacted → new to be rejected")
	}
	if err := lead.Advance(LeadStatusQualified, now); err != nil {
		t.Fatalf("contacted → qualified: %v", err)
	}
	if err := lead.Advance(LeadStatusDisqualified, now); err == nil {
		t.Fatalf("expected terminal state to reject transitions")
	}
}

func TestMarkContactedIsIdempotentPastNew(t *testing.T) {
	now := time.Now()
	lead, _ := NewLead(id.NewLeadID(), "Ada", id.ChannelEmail, "", "ada@example.com", now)

	lead.MarkContacted(now)
	if lead.Status != LeadStatusContacted {
		t.Fatalf("expected contacted, got %s", lead.Status)
	}

	_ = lead.Advance(LeadStatusQualified, now)
	lead.MarkContacted(now)
	if lead.Status != LeadStatusQualified {
		t.Fatalf("MarkContacted must not regress status, got %s", lead.Status)
	}
}
