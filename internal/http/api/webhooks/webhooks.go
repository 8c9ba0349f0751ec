// Package webhooks exposes the billing provider webhook endpoint.
package webhooks

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/webhook"
	log "github.com/sirupsen/logrus"
)

// maxBodyBytes bounds a single delivery. Provider payloads are a few KiB.
const maxBodyBytes = 16 << 20

// MessageTooLarge acknowledges a delivery that exceeded maxBodyBytes.
const MessageTooLarge = "Payload too large, ignored"

// PolarPath is the route the billing provider delivers to.
const PolarPath = "/webhooks/polar"

// RegisterWebhookRoutes registers the delivery and reachability endpoints.
func RegisterWebhookRoutes(r *gin.Engine, ingress *webhook.Ingress, nowFn func() time.Time) {
	if r == nil || ingress == nil {
		return
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	h := &handler{ingress: ingress, nowFn: nowFn, maxBody: maxBodyBytes}
	r.POST(PolarPath, h.Deliver)
	r.GET(PolarPath, h.Reachability)
}

type handler struct {
	ingress *webhook.Ingress
	nowFn   func() time.Time
	maxBody int64
}

// Deliver passes the raw body and headers to the ingress unchanged.
// Oversized bodies are acknowledged without processing so the provider stops retrying them.
func (h *handler) Deliver(c *gin.Context) {
	body, errRead := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBody+1))
	if errRead != nil {
		log.WithError(errRead).Error("webhooks: read body failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": errRead.Error()})
		return
	}
	if int64(len(body)) > h.maxBody {
		log.WithFields(log.Fields{
			"webhook_id": c.GetHeader(webhook.HeaderID),
			"limit":      h.maxBody,
		}).Error("webhooks: delivery exceeds body limit, acknowledged without processing")
		c.JSON(http.StatusOK, webhook.Response{Success: false, Message: MessageTooLarge})
		return
	}
	resp := h.ingress.Handle(c.Request.Context(), body, c.Request.Header)
	c.JSON(resp.Status, resp)
}

// Reachability lets operators confirm the endpoint is reachable.
func (h *handler) Reachability(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "Polar webhook endpoint is accessible",
		"timestamp": h.nowFn().UTC().Format(time.RFC3339),
		"url":       scheme + "://" + c.Request.Host + c.Request.URL.Path,
	})
}
