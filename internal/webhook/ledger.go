package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger outcomes recorded per delivery.
const (
	OutcomeApplied      = "applied"
	OutcomeStale        = "stale"
	OutcomeUserNotFound = "user_not_found"
	OutcomeMissingEmail = "missing_email"
	OutcomeAcknowledged = "acknowledged"
	OutcomeIgnored      = "ignored"
	OutcomeParseError   = "parse_error"
	OutcomeError        = "error"
	OutcomeLinked       = "linked"
)

const (
	providerPolar        = "polar"
	maxLedgerPayloadSize = 1 << 20
)

// Ledger records every webhook delivery for later reconciliation.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger. A nil db disables recording.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Record stores one delivery. Failures are logged and swallowed.
func (l *Ledger) Record(ctx context.Context, entry models.WebhookEvent, body []byte) {
	if l == nil || l.db == nil {
		return
	}
	if entry.Provider == "" {
		entry.Provider = providerPolar
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	entry.Payload = ledgerPayload(body)
	if errCreate := l.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.WithError(errCreate).WithFields(log.Fields{
			"type":       entry.Type,
			"message_id": entry.MessageID,
		}).Warn("webhook: record ledger entry failed")
	}
}

// ledgerPayload keeps valid JSON as-is and stores anything else as a JSON string.
func ledgerPayload(body []byte) datatypes.JSON {
	if len(body) > maxLedgerPayloadSize {
		return datatypes.JSON("null")
	}
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	encoded, errMarshal := json.Marshal(string(body))
	if errMarshal != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(encoded)
}

// LatestUnlinked returns the newest delivery for email that arrived before the user existed.
func (l *Ledger) LatestUnlinked(ctx context.Context, email string) (models.WebhookEvent, bool, error) {
	if l == nil || l.db == nil || email == "" {
		return models.WebhookEvent{}, false, nil
	}
	var entry models.WebhookEvent
	errFind := l.db.WithContext(ctx).
		Where("email = ? AND outcome = ?", email, OutcomeUserNotFound).
		Order("received_at DESC").
		Order("id DESC").
		Take(&entry).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.WebhookEvent{}, false, nil
		}
		return models.WebhookEvent{}, false, fmt.Errorf("webhook: load ledger: %w", errFind)
	}
	return entry, true, nil
}

// MarkLinked flags every unlinked delivery for email as linked.
func (l *Ledger) MarkLinked(ctx context.Context, email string) error {
	if l == nil || l.db == nil || email == "" {
		return nil
	}
	if errUpdate := l.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("email = ? AND outcome = ?", email, OutcomeUserNotFound).
		Update("outcome", OutcomeLinked).Error; errUpdate != nil {
		return fmt.Errorf("webhook: mark linked: %w", errUpdate)
	}
	return nil
}
