// Package account reads and updates the signed-in user's profile and AI preferences.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/validation"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when the account no longer exists.
	ErrUserNotFound = errors.New("account: user not found")
	// ErrEmailInUse is returned when a profile update targets another account's email.
	ErrEmailInUse = validation.New("Email already in use")
)

// ProfileUpdate carries optional profile changes. Nil fields are left as is.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// Service owns profile reads and writes.
type Service struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{db: db, nowFn: nowFn}
}

// Get loads the user by ID.
func (s *Service) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("account: load user: %w", errFind)
	}
	return user, nil
}

// UpdateProfile applies name and email changes. A changed email must not belong to another account.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (models.User, error) {
	updates := map[string]any{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		email, errEmail := validation.Email(*in.Email)
		if errEmail != nil {
			return models.User{}, errEmail
		}
		updates["email"] = email
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errFind := tx.Where("id = ?", userID).Take(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return errFind
		}
		if email, ok := updates["email"].(string); ok && email != user.Email {
			var taken int64
			if errCount := tx.Model(&models.User{}).
				Where("email = ? AND id <> ?", email, userID).
				Count(&taken).Error; errCount != nil {
				return errCount
			}
			if taken > 0 {
				return ErrEmailInUse
			}
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = s.nowFn().UTC()
		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
	})
	if errTx != nil {
		if errors.Is(errTx, ErrUserNotFound) || errors.Is(errTx, ErrEmailInUse) {
			return models.User{}, errTx
		}
		if _, ok := updates["email"]; ok && s.emailTakenByOther(ctx, updates["email"].(string), userID) {
			return models.User{}, ErrEmailInUse
		}
		return models.User{}, fmt.Errorf("account: update profile: %w", errTx)
	}
	return s.Get(ctx, userID)
}

// UpdateGlobalInstructions sets the account-wide AI instructions. Blank input clears them.
func (s *Service) UpdateGlobalInstructions(ctx context.Context, userID, instructions string) error {
	var value *string
	if trimmed := strings.TrimSpace(instructions); trimmed != "" {
		value = &trimmed
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"ai_global_instructions": value,
			"updated_at":             s.nowFn().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("account: update instructions: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// emailTakenByOther covers a unique index race lost after the in-transaction check.
func (s *Service) emailTakenByOther(ctx context.Context, email, userID string) bool {
	var taken int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND id <> ?", email, userID).
		Count(&taken).Error; errCount != nil {
		return false
	}
	return taken > 0
}
