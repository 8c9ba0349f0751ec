package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent records a received billing webhook delivery.
type WebhookEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider  string `gorm:"type:varchar(32);not null;index"`      // Billing provider name.
	MessageID string `gorm:"type:varchar(255);index"`              // webhook-id header value.
	Type      string `gorm:"type:varchar(128);not null;index"`     // Event type field.
	Email     string `gorm:"type:varchar(320);index"`              // Customer email, lower-cased.
	Verified  bool   `gorm:"not null;default:false"`               // Signature verified.
	Outcome   string `gorm:"type:varchar(64);not null;default:''"` // Processing outcome.

	Payload datatypes.JSON `gorm:"type:jsonb;not null;default:'null'"` // Raw body; non-JSON bodies are stored as a JSON string.

	EventAt    *time.Time `gorm:"index"`          // Provider event time when known.
	ReceivedAt time.Time  `gorm:"not null;index"` // Receive timestamp.
}
