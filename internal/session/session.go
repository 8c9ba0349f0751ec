// Package session issues and resolves opaque bearer sessions backed by the database.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/security"
	"github.com/inkwell-app/inkwell/internal/validation"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultTTL is the lifetime of a newly minted session.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidSession is returned for unknown, expired, or orphaned tokens alike.
	ErrInvalidSession = errors.New("unauthenticated")
	// ErrInvalidCredentials is returned when sign-in fails for any reason.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when the email already belongs to an account.
	ErrEmailTaken = validation.New("User with this email already exists")
)

// Identity is the caller resolved from a session token for one logical operation.
type Identity struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

// UserID returns the resolved user's ID.
func (i Identity) UserID() string { return i.User.ID }

// Grant is returned after sign-up or sign-in.
type Grant struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// SignUpInput holds sign-up fields.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// Linker attaches billing state recorded before the account existed.
type Linker interface {
	LinkPending(ctx context.Context, userID, email string) error
}

// Authenticator implements sign-up, sign-in, sign-out, and token resolution.
type Authenticator struct {
	db       *gorm.DB
	ttl      time.Duration
	nowFn    func() time.Time
	newToken func() (string, error)
	linker   Linker
}

// NewAuthenticator constructs an Authenticator with default dependencies when nil or zero.
func NewAuthenticator(db *gorm.DB, ttl time.Duration, nowFn func() time.Time) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authenticator{
		db:       db,
		ttl:      ttl,
		nowFn:    nowFn,
		newToken: security.NewSessionToken,
	}
}

// SetLinker registers the hook run after a successful sign-up.
func (a *Authenticator) SetLinker(linker Linker) {
	a.linker = linker
}

// Resolve maps a token to its user. Missing, expired, and orphaned sessions all yield ErrInvalidSession.
func (a *Authenticator) Resolve(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidSession
	}

	var sess models.Session
	if errFind := a.db.WithContext(ctx).Where("token = ?", token).Take(&sess).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Identity{}, ErrInvalidSession
		}
		return Identity{}, fmt.Errorf("session: load: %w", errFind)
	}
	if !sess.ExpiresAt.After(a.nowFn()) {
		return Identity{}, ErrInvalidSession
	}

	var user models.User
	if errFind := a.db.WithContext(ctx).Where("id = ?", sess.UserID).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Identity{}, ErrInvalidSession
		}
		return Identity{}, fmt.Errorf("session: load user: %w", errFind)
	}
	return Identity{User: user, Token: sess.Token, ExpiresAt: sess.ExpiresAt}, nil
}

// SignUp creates an account and its first session.
func (a *Authenticator) SignUp(ctx context.Context, in SignUpInput) (Grant, error) {
	email, errEmail := validation.Email(in.Email)
	if errEmail != nil {
		return Grant{}, errEmail
	}
	if errPassword := validation.Password(in.Password); errPassword != nil {
		return Grant{}, errPassword
	}
	name := strings.TrimSpace(in.Name)

	taken, errTaken := a.emailExists(ctx, email)
	if errTaken != nil {
		return Grant{}, errTaken
	}
	if taken {
		return Grant{}, ErrEmailTaken
	}

	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return Grant{}, errHash
	}

	now := a.nowFn().UTC()
	user := models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var grant Grant
	errTx := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return errCreate
		}
		var errMint error
		grant, errMint = a.mint(tx, user.ID, now)
		return errMint
	})
	if errTx != nil {
		// The unique index catches concurrent sign-ups that passed the pre-check.
		if exists, errCheck := a.emailExists(ctx, email); errCheck == nil && exists {
			return Grant{}, ErrEmailTaken
		}
		return Grant{}, fmt.Errorf("session: sign up: %w", errTx)
	}

	if a.linker != nil {
		if errLink := a.linker.LinkPending(ctx, user.ID, email); errLink != nil {
			log.WithError(errLink).WithField("user_id", user.ID).Warn("session: link pending subscription failed")
		}
	}
	return grant, nil
}

// SignIn verifies credentials and mints a new session.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (Grant, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return Grant{}, validation.New("Email and password are required")
	}

	var user models.User
	if errFind := a.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Grant{}, ErrInvalidCredentials
		}
		return Grant{}, fmt.Errorf("session: sign in: %w", errFind)
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		return Grant{}, ErrInvalidCredentials
	}
	return a.mint(a.db.WithContext(ctx), user.ID, a.nowFn().UTC())
}

// SignOut deletes the session for token. Unknown tokens are not an error.
func (a *Authenticator) SignOut(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if errDelete := a.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error; errDelete != nil {
		return fmt.Errorf("session: sign out: %w", errDelete)
	}
	return nil
}

func (a *Authenticator) mint(tx *gorm.DB, userID string, now time.Time) (Grant, error) {
	token, errToken := a.newToken()
	if errToken != nil {
		return Grant{}, errToken
	}
	sess := models.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(a.ttl),
		CreatedAt: now,
	}
	if errCreate := tx.Create(&sess).Error; errCreate != nil {
		return Grant{}, fmt.Errorf("session: create: %w", errCreate)
	}
	return Grant{UserID: userID, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

func (a *Authenticator) emailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if errCount := a.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("session: check email: %w", errCount)
	}
	return count > 0, nil
}
