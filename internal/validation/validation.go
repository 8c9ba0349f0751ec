// Package validation carries user-facing input errors across service boundaries.
package validation

import (
	"errors"
	"net/mail"
	"strings"
)

// Error reports input rejected before any side effect.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// New returns a validation error with a user-facing message.
func New(message string) error {
	return &Error{Message: message}
}

// Message returns the user-facing message when err is a validation error.
func Message(err error) (string, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Message, true
	}
	return "", false
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email validates and normalizes an email address.
func Email(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", New("Email is required")
	}
	addr, errParse := mail.ParseAddress(email)
	if errParse != nil || addr.Address != email {
		return "", New("Invalid email address")
	}
	return email, nil
}

// Accepted password lengths. bcrypt rejects input longer than MaxPasswordBytes.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

// Password validates a plaintext password.
func Password(password string) error {
	if strings.TrimSpace(password) == "" {
		return New("Password is required")
	}
	if len(password) < MinPasswordLength {
		return New("Password must be at least 6 characters")
	}
	if len(password) > MaxPasswordBytes {
		return New("Password must be at most 72 bytes")
	}
	return nil
}

// Blank reports whether s is empty or whitespace only.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
