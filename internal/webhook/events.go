package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event types handled by the ingress.
const (
	TypeCheckoutCompleted    = "checkout.completed"
	TypeSubscriptionCreated  = "subscription.created"
	TypeSubscriptionUpdated  = "subscription.updated"
	TypeSubscriptionCanceled = "subscription.canceled"
)

// ErrMalformedBody indicates the webhook body is not valid JSON.
var ErrMalformedBody = errors.New("webhook: body is not valid JSON")

// Event is one decoded webhook payload. Exactly one of the concrete types below.
type Event interface {
	EventType() string
}

// Customer is the billing customer embedded in provider objects.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Subscription is the provider subscription object.
type Subscription struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	CustomerID string    `json:"customer_id"`
	Customer   *Customer `json:"customer"`
	CreatedAt  string    `json:"created_at"`
	ModifiedAt string    `json:"modified_at"`
}

// Email returns the customer email, if any.
func (s Subscription) Email() string {
	if s.Customer == nil {
		return ""
	}
	return strings.TrimSpace(s.Customer.Email)
}

// OccurredAt returns the provider modification time, falling back to creation time.
func (s Subscription) OccurredAt() *time.Time {
	if t := parseTimestamp(s.ModifiedAt); t != nil {
		return t
	}
	return parseTimestamp(s.CreatedAt)
}

// Checkout is the provider checkout object.
type Checkout struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	CustomerEmail string        `json:"customer_email"`
	Customer      *Customer     `json:"customer"`
	Subscription  *Subscription `json:"subscription"`
	CreatedAt     string        `json:"created_at"`
	ModifiedAt    string        `json:"modified_at"`
}

// Email returns the checkout customer email, if any.
func (c Checkout) Email() string {
	if c.Customer != nil && strings.TrimSpace(c.Customer.Email) != "" {
		return strings.TrimSpace(c.Customer.Email)
	}
	return strings.TrimSpace(c.CustomerEmail)
}

// CheckoutCompleted is a finished checkout, possibly carrying its subscription.
type CheckoutCompleted struct {
	Checkout Checkout
}

// EventType implements Event.
func (CheckoutCompleted) EventType() string { return TypeCheckoutCompleted }

// SubscriptionChanged is subscription.created or subscription.updated.
type SubscriptionChanged struct {
	Type         string
	Subscription Subscription
}

// EventType implements Event.
func (e SubscriptionChanged) EventType() string { return e.Type }

// SubscriptionCanceled is subscription.canceled.
type SubscriptionCanceled struct {
	Subscription Subscription
}

// EventType implements Event.
func (SubscriptionCanceled) EventType() string { return TypeSubscriptionCanceled }

// UnknownEvent is any payload that is valid JSON but not a handled, well-formed event.
type UnknownEvent struct {
	Type   string
	Data   json.RawMessage
	Reason string // Why a known type was not decoded, empty for unhandled types.
}

// EventType implements Event.
func (e UnknownEvent) EventType() string { return e.Type }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes a webhook body. Only non-JSON input is an error;
// any other shape problem yields an UnknownEvent.
func ParseEvent(body []byte) (Event, error) {
	if !json.Valid(body) {
		return nil, ErrMalformedBody
	}
	var env envelope
	if errUnmarshal := json.Unmarshal(body, &env); errUnmarshal != nil {
		return UnknownEvent{Reason: fmt.Sprintf("decode envelope: %v", errUnmarshal)}, nil
	}

	switch env.Type {
	case TypeCheckoutCompleted:
		var checkout Checkout
		if errData := decodeData(env.Data, &checkout); errData != nil {
			return UnknownEvent{Type: env.Type, Data: env.Data, Reason: errData.Error()}, nil
		}
		return CheckoutCompleted{Checkout: checkout}, nil
	case TypeSubscriptionCreated, TypeSubscriptionUpdated:
		var sub Subscription
		if errData := decodeData(env.Data, &sub); errData != nil {
			return UnknownEvent{Type: env.Type, Data: env.Data, Reason: errData.Error()}, nil
		}
		return SubscriptionChanged{Type: env.Type, Subscription: sub}, nil
	case TypeSubscriptionCanceled:
		var sub Subscription
		if errData := decodeData(env.Data, &sub); errData != nil {
			return UnknownEvent{Type: env.Type, Data: env.Data, Reason: errData.Error()}, nil
		}
		return SubscriptionCanceled{Subscription: sub}, nil
	default:
		return UnknownEvent{Type: env.Type, Data: env.Data}, nil
	}
}

func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("missing data object")
	}
	if errUnmarshal := json.Unmarshal(raw, dst); errUnmarshal != nil {
		return fmt.Errorf("decode data: %w", errUnmarshal)
	}
	return nil
}

// EventEmail returns the customer email carried by an event, lower-cased.
func EventEmail(ev Event) string {
	switch e := ev.(type) {
	case CheckoutCompleted:
		if e.Checkout.Subscription != nil && e.Checkout.Subscription.Email() != "" {
			return strings.ToLower(e.Checkout.Subscription.Email())
		}
		return strings.ToLower(e.Checkout.Email())
	case SubscriptionChanged:
		return strings.ToLower(e.Subscription.Email())
	case SubscriptionCanceled:
		return strings.ToLower(e.Subscription.Email())
	default:
		return ""
	}
}

// parseTimestamp accepts RFC 3339 timestamps with or without a zone and unix seconds.
func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, errParse := time.Parse(layout, raw); errParse == nil {
			utc := t.UTC()
			return &utc
		}
	}
	if secs, errParse := strconv.ParseInt(raw, 10, 64); errParse == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	return nil
}
