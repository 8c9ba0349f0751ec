package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is a rich-text document owned by a single user.
type Document struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Primary key (UUID).

	UserID string `gorm:"type:varchar(36);not null;index"` // Owning user ID.

	Title          string  `gorm:"type:text;not null;default:''"` // Document title.
	Content        string  `gorm:"type:text;not null;default:''"` // Serialized rich-text body.
	AIInstructions *string `gorm:"type:text"`                     // Per-document AI instructions.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BeforeCreate assigns a UUID primary key when missing.
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Knowledge is a reference snippet attached to a document.
type Knowledge struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Primary key (UUID).

	DocumentID string `gorm:"type:varchar(36);not null;index"` // Parent document ID.

	Title   string `gorm:"type:text;not null;default:''"` // Snippet title.
	Content string `gorm:"type:text;not null;default:''"` // Snippet body.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (Knowledge) TableName() string {
	return "knowledge"
}

// BeforeCreate assigns a UUID primary key when missing.
func (k *Knowledge) BeforeCreate(_ *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}
