package models

import "time"

// AIUsage records one completion attempt.
type AIUsage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string `gorm:"type:varchar(36);not null;index:idx_ai_usages_user_created,priority:1"` // Requesting user.
	Endpoint string `gorm:"type:varchar(16);not null"`                                            // chat or generate.
	Model    string `gorm:"type:varchar(128);not null;default:''"`                                // Completion model.

	PromptTokens     int `gorm:"not null;default:0"` // Reported or estimated prompt tokens.
	CompletionTokens int `gorm:"not null;default:0"` // Reported completion tokens.
	TotalTokens      int `gorm:"not null;default:0"` // Prompt plus completion tokens.

	Success     bool   `gorm:"not null;default:false"`              // Whether content was returned.
	FailureKind string `gorm:"type:varchar(32);not null;default:''"` // Classified failure kind.

	CreatedAt time.Time `gorm:"not null;index:idx_ai_usages_user_created,priority:2"` // Attempt time.
}
