package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an end-user account stored in the database.
type User struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Primary key (UUID).

	Email        string `gorm:"type:varchar(320);not null;uniqueIndex"` // Lower-cased email address.
	Name         string `gorm:"type:text;not null;default:''"`          // Display name.
	PasswordHash string `gorm:"type:text;not null"`                     // Hashed password.

	HasActiveSubscription bool       `gorm:"not null;default:false"`              // Whether the editor is unlocked.
	SubscriptionID        *string    `gorm:"type:varchar(255)"`                    // Billing provider subscription ID.
	SubscriptionStatus    string     `gorm:"type:varchar(64);not null;default:''"` // Raw provider status string.
	SubscriptionUpdatedAt *time.Time `gorm:"index"`                                // Last subscription mutation time.
	SubscriptionEventAt   *time.Time `gorm:"column:subscription_event_at"`         // Provider time of the last applied billing event.

	AIGlobalInstructions *string `gorm:"type:text"` // Account-wide AI instructions.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
