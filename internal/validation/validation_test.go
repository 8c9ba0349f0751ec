package validation

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEmailNormalizes(t *testing.T) {
	got, err := Email("  A@X.Com ")
	if err != nil {
		t.Fatalf("expected valid email, got %v", err)
	}
	if got != "a@x.com" {
		t.Fatalf("expected a@x.com, got %q", got)
	}
	for _, raw := range []string{"", "   ", "not-an-email", "A <a@x.com>"} {
		if _, errEmail := Email(raw); errEmail == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestPasswordLength(t *testing.T) {
	if err := Password("12345"); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if err := Password("      "); err == nil {
		t.Fatalf("expected blank password to fail")
	}
	if err := Password("secret1"); err != nil {
		t.Fatalf("expected password to pass, got %v", err)
	}
	if err := Password(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("expected 72-byte password to pass, got %v", err)
	}
	if err := Password(strings.Repeat("a", MaxPasswordBytes+1)); err == nil {
		t.Fatalf("expected 73-byte password to fail")
	}
	// Multibyte runes count by byte.
	if err := Password(strings.Repeat("é", 37)); err == nil {
		t.Fatalf("expected 74-byte password to fail")
	}
}

func TestMessageUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("sign up: %w", New("Email is required"))
	msg, ok := Message(wrapped)
	if !ok || msg != "Email is required" {
		t.Fatalf("expected validation message, got %q ok=%v", msg, ok)
	}
	if _, ok := Message(errors.New("boom")); ok {
		t.Fatalf("expected plain error not to be a validation error")
	}
}
