package front

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/assistant"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/http/api/front/handlers"
	"github.com/inkwell-app/inkwell/internal/ratelimit"
	"github.com/inkwell-app/inkwell/internal/session"
	log "github.com/sirupsen/logrus"
)

// sessionAuthMiddleware resolves the bearer token on every request and stores the identity.
// Unknown, expired, and orphaned tokens all produce the same 401.
func sessionAuthMiddleware(auth *session.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if authHeader == "" || token == authHeader || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidSession.Error()})
			return
		}
		identity, errResolve := auth.Resolve(c.Request.Context(), token)
		if errResolve != nil {
			if !errors.Is(errResolve, session.ErrInvalidSession) {
				log.WithError(errResolve).Error("front: resolve session failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolve session failed"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidSession.Error()})
			return
		}
		c.Set(handlers.IdentityKey, identity)
		c.Next()
	}
}

// subscriptionMiddleware rejects callers without an active subscription when required.
func subscriptionMiddleware(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !required {
			c.Next()
			return
		}
		identity, ok := handlers.CurrentIdentity(c)
		if !ok || !identity.User.HasActiveSubscription {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "subscription required"})
			return
		}
		c.Next()
	}
}

// aiRateLimitMiddleware enforces the per-user AI request limit for the caller's tier.
func aiRateLimitMiddleware(limiter *ratelimit.Manager, cfg config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := handlers.CurrentIdentity(c)
		if !ok || limiter == nil {
			c.Next()
			return
		}
		decision := ratelimit.ResolveLimit(cfg, identity.User.HasActiveSubscription)
		key := ratelimit.KeyForUser(identity.UserID(), decision)
		if key == "" {
			c.Next()
			return
		}
		result, errAllow := limiter.Allow(c.Request.Context(), key, decision)
		if errAllow != nil {
			log.WithError(errAllow).Warn("front: rate limit check failed, allowing request")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"content": assistant.MessageRateLimit,
				"success": false,
				"error":   assistant.MessageRateLimit,
			})
			return
		}
		c.Next()
	}
}

// corsMiddleware answers preflight requests and echoes allowed origins.
// An empty list or "*" allows any origin.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
		}
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
