// Package webhook receives billing provider events and applies them to subscriptions.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/subscription"
	log "github.com/sirupsen/logrus"
)

// Response is the HTTP reply for one delivery.
type Response struct {
	Status  int    `json:"-"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Messages returned to the provider.
const (
	MessageWillLink      = "User not found, will link on signup"
	MessageNotHandled    = "Event not handled"
	MessageMissingEmail  = "Missing customer email"
	MessageStaleIgnored  = "Stale event ignored"
	MessageMalformedData = "Malformed event data"
)

// Ingress verifies, decodes, and applies billing webhooks.
// It never rejects a delivery for a bad signature; only non-JSON bodies and internal failures return 500.
type Ingress struct {
	subs   *subscription.Service
	secret string
	ledger *Ledger
	nowFn  func() time.Time
}

// NewIngress constructs an Ingress.
func NewIngress(subs *subscription.Service, secret string, ledger *Ledger, nowFn func() time.Time) *Ingress {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Ingress{
		subs:   subs,
		secret: strings.TrimSpace(secret),
		ledger: ledger,
		nowFn:  nowFn,
	}
}

// Handle processes one raw delivery.
func (in *Ingress) Handle(ctx context.Context, body []byte, headers http.Header) (resp Response) {
	entry := models.WebhookEvent{
		Provider:   providerPolar,
		MessageID:  strings.TrimSpace(headers.Get(HeaderID)),
		ReceivedAt: in.nowFn().UTC(),
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			log.WithField("panic", recovered).Error("webhook: panic while processing delivery")
			resp = internalError(fmt.Errorf("%v", recovered))
			entry.Outcome = OutcomeError
		}
		in.ledger.Record(context.WithoutCancel(ctx), entry, body)
	}()

	entry.Verified = in.verify(body, headers)

	ev, errParse := ParseEvent(body)
	if errParse != nil {
		log.WithError(errParse).WithField("length", len(body)).Error("webhook: parse body failed")
		entry.Outcome = OutcomeParseError
		return internalError(errParse)
	}
	entry.Type = ev.EventType()
	entry.Email = EventEmail(ev)

	fields := log.Fields{"type": entry.Type, "message_id": entry.MessageID, "verified": entry.Verified}
	log.WithFields(fields).Info("webhook: event received")

	resp, entry.Outcome, entry.EventAt = in.apply(ctx, ev, headers)
	if resp.Status == http.StatusInternalServerError {
		log.WithFields(fields).WithField("details", resp.Details).Error("webhook: processing failed")
	}
	return resp
}

// apply dispatches a decoded event and reports the response, ledger outcome, and event time.
func (in *Ingress) apply(ctx context.Context, ev Event, headers http.Header) (Response, string, *time.Time) {
	switch e := ev.(type) {
	case CheckoutCompleted:
		if e.Checkout.Subscription == nil {
			log.WithField("email", e.Checkout.Email()).Info("webhook: checkout completed without subscription")
			return ok(""), OutcomeAcknowledged, nil
		}
		sub := *e.Checkout.Subscription
		if sub.Email() == "" && e.Checkout.Email() != "" {
			sub.Customer = &Customer{ID: sub.CustomerID, Email: e.Checkout.Email()}
		}
		at := eventTime(sub, headers)
		resp, outcome := in.applySubscription(ctx, TypeCheckoutCompleted, sub, at)
		return resp, outcome, at
	case SubscriptionChanged:
		at := eventTime(e.Subscription, headers)
		resp, outcome := in.applySubscription(ctx, e.Type, e.Subscription, at)
		return resp, outcome, at
	case SubscriptionCanceled:
		at := eventTime(e.Subscription, headers)
		resp, outcome := in.applyCancel(ctx, e.Subscription, at)
		return resp, outcome, at
	case UnknownEvent:
		if e.Reason != "" {
			log.WithFields(log.Fields{"type": e.Type, "reason": e.Reason}).Warn("webhook: malformed event acknowledged")
			return Response{Status: http.StatusOK, Success: false, Message: MessageMalformedData}, OutcomeIgnored, nil
		}
		log.WithField("type", e.Type).Info("webhook: unhandled event type")
		return ok(MessageNotHandled), OutcomeIgnored, nil
	default:
		return ok(MessageNotHandled), OutcomeIgnored, nil
	}
}

func (in *Ingress) applySubscription(ctx context.Context, eventType string, sub Subscription, at *time.Time) (Response, string) {
	email := sub.Email()
	if email == "" {
		log.WithField("type", eventType).Warn("webhook: missing customer email")
		return Response{Status: http.StatusOK, Success: false, Message: MessageMissingEmail}, OutcomeMissingEmail
	}
	user, found, errFind := in.subs.FindUserByEmail(ctx, email)
	if errFind != nil {
		return internalError(errFind), OutcomeError
	}
	if !found {
		log.WithFields(log.Fields{"type": eventType, "email": email}).Warn("webhook: no user for email, will link on signup")
		return ok(MessageWillLink), OutcomeUserNotFound
	}

	status := strings.TrimSpace(sub.Status)
	update := subscription.Update{
		HasActiveSubscription: subscription.IsActiveStatus(status),
		SubscriptionStatus:    &status,
		EventAt:               at,
	}
	if id := strings.TrimSpace(sub.ID); id != "" {
		update.SubscriptionID = &id
	}
	return in.update(ctx, user.ID, update)
}

func (in *Ingress) applyCancel(ctx context.Context, sub Subscription, at *time.Time) (Response, string) {
	email := sub.Email()
	if email == "" {
		log.WithField("type", TypeSubscriptionCanceled).Warn("webhook: missing customer email")
		return Response{Status: http.StatusOK, Success: false, Message: MessageMissingEmail}, OutcomeMissingEmail
	}
	user, found, errFind := in.subs.FindUserByEmail(ctx, email)
	if errFind != nil {
		return internalError(errFind), OutcomeError
	}
	if !found {
		return ok(""), OutcomeUserNotFound
	}
	canceled := subscription.StatusCanceled
	return in.update(ctx, user.ID, subscription.Update{
		HasActiveSubscription: false,
		SubscriptionStatus:    &canceled,
		EventAt:               at,
	})
}

func (in *Ingress) update(ctx context.Context, userID string, update subscription.Update) (Response, string) {
	outcome, errUpdate := in.subs.UpdateSubscription(ctx, userID, update)
	if errUpdate != nil {
		return internalError(errUpdate), OutcomeError
	}
	if outcome == subscription.OutcomeStale {
		return ok(MessageStaleIgnored), OutcomeStale
	}
	return ok(""), OutcomeApplied
}

// LinkPending replays the newest delivery that arrived before the account existed.
func (in *Ingress) LinkPending(ctx context.Context, userID, email string) error {
	entry, found, errFind := in.ledger.LatestUnlinked(ctx, email)
	if errFind != nil || !found {
		return errFind
	}
	ev, errParse := ParseEvent(entry.Payload)
	if errParse != nil {
		return fmt.Errorf("webhook: replay %d: %w", entry.ID, errParse)
	}

	var update subscription.Update
	switch e := ev.(type) {
	case SubscriptionChanged:
		update = linkedUpdate(e.Subscription, e.Subscription.Status)
	case CheckoutCompleted:
		if e.Checkout.Subscription == nil {
			return nil
		}
		update = linkedUpdate(*e.Checkout.Subscription, e.Checkout.Subscription.Status)
	case SubscriptionCanceled:
		update = linkedUpdate(e.Subscription, subscription.StatusCanceled)
		update.HasActiveSubscription = false
	default:
		return nil
	}
	if update.EventAt == nil {
		update.EventAt = entry.EventAt
	}
	if _, errUpdate := in.subs.UpdateSubscription(ctx, userID, update); errUpdate != nil {
		return errUpdate
	}
	log.WithFields(log.Fields{"user_id": userID, "type": entry.Type}).Info("webhook: linked pending subscription")
	return in.ledger.MarkLinked(ctx, email)
}

func linkedUpdate(sub Subscription, status string) subscription.Update {
	status = strings.TrimSpace(status)
	update := subscription.Update{
		HasActiveSubscription: subscription.IsActiveStatus(status),
		SubscriptionStatus:    &status,
		EventAt:               sub.OccurredAt(),
	}
	if id := strings.TrimSpace(sub.ID); id != "" {
		update.SubscriptionID = &id
	}
	return update
}

func (in *Ingress) verify(body []byte, headers http.Header) bool {
	id := strings.TrimSpace(headers.Get(HeaderID))
	ts := strings.TrimSpace(headers.Get(HeaderTimestamp))
	sig := strings.TrimSpace(headers.Get(HeaderSignature))
	if id == "" || ts == "" || sig == "" || in.secret == "" {
		log.Warn("webhook: skipping signature verification (missing headers or secret)")
		return false
	}
	if !Verify(in.secret, id, ts, body, sig) {
		log.WithField("message_id", id).Warn("webhook: signature verification failed, processing anyway")
		return false
	}
	return true
}

// eventTime prefers the provider's object timestamps over the delivery header.
func eventTime(sub Subscription, headers http.Header) *time.Time {
	if at := sub.OccurredAt(); at != nil {
		return at
	}
	return parseTimestamp(headers.Get(HeaderTimestamp))
}

func ok(message string) Response {
	return Response{Status: http.StatusOK, Success: true, Message: message}
}

func internalError(err error) Response {
	return Response{Status: http.StatusInternalServerError, Success: false, Error: "Internal server error", Details: err.Error()}
}
