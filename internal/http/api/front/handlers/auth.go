package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/account"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/session"
	log "github.com/sirupsen/logrus"
)

// AuthHandler serves sign-up, sign-in, sign-out, and profile endpoints.
type AuthHandler struct {
	auth     *session.Authenticator
	accounts *account.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *session.Authenticator, accounts *account.Service) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type updateInstructionsRequest struct {
	Instructions string `json:"instructions"`
}

// SignUp creates an account and returns its first session.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var body signUpRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	grant, errSignUp := h.auth.SignUp(c.Request.Context(), session.SignUpInput{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if errSignUp != nil {
		if writeValidation(c, errSignUp) {
			return
		}
		log.WithError(errSignUp).Error("auth: sign up failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign up failed"})
		return
	}
	c.JSON(http.StatusCreated, grantJSON(grant))
}

// SignIn verifies credentials and returns a new session.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var body signInRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	grant, errSignIn := h.auth.SignIn(c.Request.Context(), body.Email, body.Password)
	if errSignIn != nil {
		if writeValidation(c, errSignIn) {
			return
		}
		if errors.Is(errSignIn, session.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errSignIn.Error()})
			return
		}
		log.WithError(errSignIn).Error("auth: sign in failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign in failed"})
		return
	}
	c.JSON(http.StatusOK, grantJSON(grant))
}

// SignOut deletes the bearer session. It succeeds for unknown or missing tokens.
func (h *AuthHandler) SignOut(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if errSignOut := h.auth.SignOut(c.Request.Context(), token); errSignOut != nil {
		log.WithError(errSignOut).Error("auth: sign out failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign out failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userJSON(identity.User))
}

// UpdateProfile changes the user's name and email.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body updateProfileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, errUpdate := h.accounts.UpdateProfile(c.Request.Context(), identity.UserID(), account.ProfileUpdate{
		Name:  body.Name,
		Email: body.Email,
	})
	if errUpdate != nil {
		if writeValidation(c, errUpdate) {
			return
		}
		if errors.Is(errUpdate, account.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidSession.Error()})
			return
		}
		log.WithError(errUpdate).Error("auth: update profile failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update profile failed"})
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// UpdateInstructions sets or clears the account-wide AI instructions.
func (h *AuthHandler) UpdateInstructions(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body updateInstructionsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errUpdate := h.accounts.UpdateGlobalInstructions(c.Request.Context(), identity.UserID(), body.Instructions); errUpdate != nil {
		if errors.Is(errUpdate, account.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidSession.Error()})
			return
		}
		log.WithError(errUpdate).Error("auth: update instructions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update instructions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func grantJSON(grant session.Grant) gin.H {
	return gin.H{
		"userId":    grant.UserID,
		"token":     grant.Token,
		"expiresAt": grant.ExpiresAt,
	}
}

func userJSON(user models.User) gin.H {
	return gin.H{
		"id":                    user.ID,
		"email":                 user.Email,
		"name":                  user.Name,
		"createdAt":             user.CreatedAt,
		"hasActiveSubscription": user.HasActiveSubscription,
		"subscriptionStatus":    user.SubscriptionStatus,
		"subscriptionId":        user.SubscriptionID,
		"aiGlobalInstructions":  user.AIGlobalInstructions,
	}
}
