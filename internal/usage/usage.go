// Package usage persists AI completion attempts and summarizes them per user.
package usage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/assistant"
	"github.com/inkwell-app/inkwell/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// recordTimeout bounds a single usage write.
const recordTimeout = 5 * time.Second

// GormRecorder persists usage rows with GORM.
type GormRecorder struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewGormRecorder constructs a GormRecorder.
func NewGormRecorder(db *gorm.DB, nowFn func() time.Time) *GormRecorder {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &GormRecorder{db: db, nowFn: nowFn}
}

// RecordUsage implements assistant.UsageRecorder. Write failures are logged, never returned.
func (r *GormRecorder) RecordUsage(ctx context.Context, u assistant.Usage) {
	if r == nil || r.db == nil {
		return
	}
	userID := strings.TrimSpace(u.UserID)
	if userID == "" {
		return
	}

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	row := models.AIUsage{
		UserID:           userID,
		Endpoint:         strings.TrimSpace(u.Endpoint),
		Model:            strings.TrimSpace(u.Model),
		PromptTokens:     nonNegative(u.PromptTokens),
		CompletionTokens: nonNegative(u.CompletionTokens),
		Success:          u.Success,
		FailureKind:      strings.TrimSpace(u.Kind),
		CreatedAt:        r.nowFn().UTC(),
	}
	row.TotalTokens = row.PromptTokens + row.CompletionTokens
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).WithField("user_id", userID).Warn("usage: failed to persist usage")
	}
}

// Summary aggregates a user's attempts since a point in time.
type Summary struct {
	Since            time.Time
	Requests         int64
	Failed           int64
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Summarize totals the user's attempts at or after since.
func (r *GormRecorder) Summarize(ctx context.Context, userID string, since time.Time) (Summary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Summary{}, errors.New("usage: empty user id")
	}
	since = since.UTC()

	// totals maps the aggregate columns.
	var totals struct {
		Requests         int64
		Failed           int64
		PromptTokens     int64
		CompletionTokens int64
		TotalTokens      int64
	}
	errScan := r.db.WithContext(ctx).Model(&models.AIUsage{}).
		Select(`COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failed,
			COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
			COALESCE(SUM(total_tokens), 0) AS total_tokens`).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&totals).Error
	if errScan != nil {
		return Summary{}, errScan
	}
	return Summary{
		Since:            since,
		Requests:         totals.Requests,
		Failed:           totals.Failed,
		PromptTokens:     totals.PromptTokens,
		CompletionTokens: totals.CompletionTokens,
		TotalTokens:      totals.TotalTokens,
	}, nil
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
