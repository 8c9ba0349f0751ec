package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/usage"
	log "github.com/sirupsen/logrus"
)

const (
	defaultUsageDays = 30
	maxUsageDays     = 365
)

// UsageHandler reports the caller's AI usage.
type UsageHandler struct {
	recorder *usage.GormRecorder
	nowFn    func() time.Time
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(recorder *usage.GormRecorder, nowFn func() time.Time) *UsageHandler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &UsageHandler{recorder: recorder, nowFn: nowFn}
}

// Summary totals requests and tokens over the last ?days= days.
func (h *UsageHandler) Summary(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	days := defaultUsageDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 || parsed > maxUsageDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}
	since := h.nowFn().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	summary, errSummary := h.recorder.Summarize(c.Request.Context(), identity.UserID(), since)
	if errSummary != nil {
		log.WithError(errSummary).Error("usage: summarize failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load usage failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"since":            summary.Since,
		"requests":         summary.Requests,
		"failed":           summary.Failed,
		"promptTokens":     summary.PromptTokens,
		"completionTokens": summary.CompletionTokens,
		"totalTokens":      summary.TotalTokens,
	})
}
