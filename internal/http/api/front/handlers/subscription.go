package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/billing"
	"github.com/inkwell-app/inkwell/internal/session"
	"github.com/inkwell-app/inkwell/internal/subscription"
	log "github.com/sirupsen/logrus"
)

// SubscriptionHandler serves subscription status, confirmation wait, and customer portal endpoints.
type SubscriptionHandler struct {
	subs         *subscription.Service
	portal       *billing.PortalClient
	awaitDefault time.Duration
	awaitMax     time.Duration
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(subs *subscription.Service, portal *billing.PortalClient, awaitDefault, awaitMax time.Duration) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, portal: portal, awaitDefault: awaitDefault, awaitMax: awaitMax}
}

// Status returns the user's current subscription fields.
func (h *SubscriptionHandler) Status(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	status, errStatus := h.subs.Status(c.Request.Context(), identity.UserID())
	if errStatus != nil {
		h.writeStatusError(c, errStatus)
		return
	}
	c.JSON(http.StatusOK, statusJSON(status))
}

// Await blocks until the subscription is active or ?timeout= elapses.
func (h *SubscriptionHandler) Await(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	timeout := h.awaitDefault
	if raw := strings.TrimSpace(c.Query("timeout")); raw != "" {
		parsed, errParse := time.ParseDuration(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout"})
			return
		}
		timeout = parsed
	}
	if h.awaitMax > 0 && timeout > h.awaitMax {
		timeout = h.awaitMax
	}

	result, status, errAwait := h.subs.Await(c.Request.Context(), identity.UserID(), timeout)
	if errAwait != nil {
		if c.Request.Context().Err() != nil {
			return
		}
		h.writeStatusError(c, errAwait)
		return
	}
	out := statusJSON(status)
	out["status"] = string(result)
	c.JSON(http.StatusOK, out)
}

// Portal returns a pre-authenticated customer portal link.
func (h *SubscriptionHandler) Portal(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var subscriptionID string
	if identity.User.SubscriptionID != nil {
		subscriptionID = *identity.User.SubscriptionID
	}
	url, errPortal := h.portal.PortalURL(c.Request.Context(), subscriptionID)
	if errPortal != nil {
		status, message := portalError(errPortal)
		if status >= http.StatusInternalServerError {
			log.WithError(errPortal).WithField("user_id", identity.UserID()).Error("subscription: portal link failed")
		}
		c.JSON(status, gin.H{"url": nil, "error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *SubscriptionHandler) writeStatusError(c *gin.Context, err error) {
	if errors.Is(err, subscription.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidSession.Error()})
		return
	}
	log.WithError(err).Error("subscription: status failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "load subscription failed"})
}

func portalError(err error) (int, string) {
	var statusErr *billing.StatusError
	switch {
	case errors.Is(err, billing.ErrNoSubscription):
		return http.StatusNotFound, "No active subscription found"
	case errors.Is(err, billing.ErrNotConfigured):
		return http.StatusServiceUnavailable, "Billing is not configured. Please contact support."
	case errors.Is(err, billing.ErrUnauthorized):
		return http.StatusBadGateway, "Billing provider authentication failed. Please contact support."
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		return http.StatusNotFound, "Subscription not found. Please contact support."
	case errors.Is(err, billing.ErrMissingCustomer):
		return http.StatusBadGateway, "Customer information not found. Please contact support."
	case errors.Is(err, billing.ErrMissingPortalURL):
		return http.StatusBadGateway, "Portal URL not returned by the billing provider. Please contact support."
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, "Failed to create customer portal session. Please try again later."
	default:
		return http.StatusInternalServerError, "Failed to create customer portal session. Please try again later."
	}
}

func statusJSON(status subscription.Status) gin.H {
	return gin.H{
		"hasActiveSubscription": status.HasActiveSubscription,
		"subscriptionStatus":    status.SubscriptionStatus,
		"subscriptionId":        status.SubscriptionID,
		"subscriptionUpdatedAt": status.SubscriptionUpdatedAt,
	}
}
