package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/session"
	"github.com/inkwell-app/inkwell/internal/validation"
)

// IdentityKey is the gin context key holding the resolved session.Identity.
const IdentityKey = "identity"

// CurrentIdentity returns the identity set by the session middleware.
func CurrentIdentity(c *gin.Context) (session.Identity, bool) {
	value, ok := c.Get(IdentityKey)
	if !ok {
		return session.Identity{}, false
	}
	identity, ok := value.(session.Identity)
	return identity, ok
}

// requireIdentity aborts with 401 when the middleware did not run.
func requireIdentity(c *gin.Context) (session.Identity, bool) {
	identity, ok := CurrentIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidSession.Error()})
		return session.Identity{}, false
	}
	return identity, true
}

// writeValidation writes a 400 for validation errors and reports whether it did.
func writeValidation(c *gin.Context, err error) bool {
	if msg, ok := validation.Message(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return true
	}
	return false
}
