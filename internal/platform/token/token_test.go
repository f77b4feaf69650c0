package token

import (
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewValidator("unit-test-key")

	signed, err := v.Issue("operator-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := v.ValidateToken(signed)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "operator-1" {
		t.Fatalf("expected subject operator-1, got %q", claims.Subject)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	v := NewValidator("unit-test-key")

	signed, err := v.Issue("operator-1", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := v.ValidateToken(signed); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	signed, err := NewValidator("key-a").Issue("operator-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := NewValidator("key-b").ValidateToken(signed); err == nil {
		t.Fatalf("expected token signed with different key to be rejected")
	}
}
