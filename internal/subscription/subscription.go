// Package subscription applies billing state to user accounts.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/validation"
	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Provider status values that unlock the editor.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusCanceled = "canceled"
)

// ErrUserNotFound is returned when the target user does not exist.
var ErrUserNotFound = errors.New("subscription: user not found")

// IsActiveStatus reports whether a provider status grants access.
func IsActiveStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusActive, StatusTrialing:
		return true
	default:
		return false
	}
}

// Update is a subscription patch. Nil pointers leave the stored value untouched.
type Update struct {
	HasActiveSubscription bool
	SubscriptionID        *string
	SubscriptionStatus    *string
	EventAt               *time.Time // Provider event time, used by the ordering guard.
}

// Outcome describes what UpdateSubscription did.
type Outcome string

const (
	// OutcomeApplied means the patch was written.
	OutcomeApplied Outcome = "applied"
	// OutcomeStale means the ordering guard skipped an older event.
	OutcomeStale Outcome = "stale"
)

// Status is the subscription view of a user.
type Status struct {
	HasActiveSubscription bool
	SubscriptionID        *string
	SubscriptionStatus    string
	SubscriptionUpdatedAt *time.Time
}

// Service is the only writer of user subscription fields.
type Service struct {
	db            *gorm.DB
	nowFn         func() time.Time
	orderingGuard bool
	awaitBase     time.Duration
	awaitCap      time.Duration
}

// NewService constructs a Service. When orderingGuard is set, events older than the last applied one are skipped.
func NewService(conn *gorm.DB, nowFn func() time.Time, orderingGuard bool) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{
		db:            conn,
		nowFn:         nowFn,
		orderingGuard: orderingGuard,
		awaitBase:     500 * time.Millisecond,
		awaitCap:      8 * time.Second,
	}
}

// UpdateSubscription patches the user's subscription fields and stamps subscriptionUpdatedAt.
// Without the ordering guard every call wins (last writer wins).
func (s *Service) UpdateSubscription(ctx context.Context, userID string, u Update) (Outcome, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrUserNotFound
	}
	outcome := OutcomeApplied
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.User{}).Where("id = ?", userID)
		if !db.IsSQLite(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var user models.User
		if errFind := query.Take(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return errFind
		}

		if s.orderingGuard && u.EventAt != nil && user.SubscriptionEventAt != nil && u.EventAt.Before(*user.SubscriptionEventAt) {
			outcome = OutcomeStale
			return nil
		}

		now := s.nowFn().UTC()
		updates := map[string]any{
			"has_active_subscription": u.HasActiveSubscription,
			"subscription_updated_at": now,
			"updated_at":              now,
		}
		if u.SubscriptionID != nil {
			updates["subscription_id"] = strings.TrimSpace(*u.SubscriptionID)
		}
		if u.SubscriptionStatus != nil {
			updates["subscription_status"] = strings.TrimSpace(*u.SubscriptionStatus)
		}
		if u.EventAt != nil {
			updates["subscription_event_at"] = u.EventAt.UTC()
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
	})
	if errTx != nil {
		if errors.Is(errTx, ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("subscription: update: %w", errTx)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"active":  u.HasActiveSubscription,
		"outcome": outcome,
	}).Info("subscription: update processed")
	return outcome, nil
}

// FindUserByEmail looks a user up with the same normalization used at sign-up.
// It returns ok=false when no user has that email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return models.User{}, false, nil
	}
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("subscription: find user: %w", errFind)
	}
	return user, true, nil
}

// Status returns the current subscription fields for a user.
func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).
		Select("id", "has_active_subscription", "subscription_id", "subscription_status", "subscription_updated_at").
		Where("id = ?", userID).
		Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Status{}, ErrUserNotFound
		}
		return Status{}, fmt.Errorf("subscription: status: %w", errFind)
	}
	return Status{
		HasActiveSubscription: user.HasActiveSubscription,
		SubscriptionID:        user.SubscriptionID,
		SubscriptionStatus:    user.SubscriptionStatus,
		SubscriptionUpdatedAt: user.SubscriptionUpdatedAt,
	}, nil
}

// AwaitResult is the terminal state of Await.
type AwaitResult string

const (
	// AwaitActive means the subscription became active.
	AwaitActive AwaitResult = "active"
	// AwaitTimeout means the deadline passed first.
	AwaitTimeout AwaitResult = "timeout"
)

var errNotYetActive = errors.New("subscription not active yet")

// Await polls until the user's subscription is active or timeout elapses.
// Polls back off exponentially from 500ms up to 8s between attempts.
func (s *Service) Await(ctx context.Context, userID string, timeout time.Duration) (AwaitResult, Status, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := retry.NewExponential(s.awaitBase)
	backoff = retry.WithCappedDuration(s.awaitCap, backoff)
	backoff = retry.WithMaxDuration(timeout, backoff)

	var last Status
	errDo := retry.Do(waitCtx, backoff, func(ctx context.Context) error {
		status, errStatus := s.Status(ctx, userID)
		if errStatus != nil {
			if errors.Is(errStatus, ErrUserNotFound) {
				return errStatus
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(errStatus).WithField("user_id", userID).Warn("subscription: await poll failed")
			return retry.RetryableError(errStatus)
		}
		last = status
		if status.HasActiveSubscription {
			return nil
		}
		return retry.RetryableError(errNotYetActive)
	})
	switch {
	case errDo == nil:
		return AwaitActive, last, nil
	case ctx.Err() != nil:
		return "", last, ctx.Err()
	case errors.Is(errDo, ErrUserNotFound):
		return "", last, errDo
	default:
		return AwaitTimeout, last, nil
	}
}
