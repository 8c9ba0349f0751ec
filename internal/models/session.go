package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session links an opaque bearer token to a user until it expires.
type Session struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Primary key (UUID).

	Token  string `gorm:"type:varchar(128);not null;uniqueIndex"` // Opaque random token.
	UserID string `gorm:"type:varchar(36);not null;index"`        // Owning user ID.

	ExpiresAt time.Time `gorm:"not null;index"`          // Absolute expiry.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (s *Session) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
