// Package front registers the editor's user-facing API.
package front

import (
	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/account"
	"github.com/inkwell-app/inkwell/internal/assistant"
	"github.com/inkwell-app/inkwell/internal/billing"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/documents"
	"github.com/inkwell-app/inkwell/internal/http/api/front/handlers"
	"github.com/inkwell-app/inkwell/internal/ratelimit"
	"github.com/inkwell-app/inkwell/internal/session"
	"github.com/inkwell-app/inkwell/internal/subscription"
	"github.com/inkwell-app/inkwell/internal/usage"
	"gorm.io/gorm"
)

// Deps are the services behind the front API.
type Deps struct {
	DB            *gorm.DB
	Auth          *session.Authenticator
	Accounts      *account.Service
	Subscriptions *subscription.Service
	Documents     *documents.Store
	Assistant     *assistant.Service
	Portal        *billing.PortalClient
	Usage         *usage.GormRecorder
	Limiter       *ratelimit.Manager
	Config        config.Config
}

// RegisterFrontRoutes registers middleware, handlers, and the health check.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Auth == nil {
		return
	}
	r.Use(corsMiddleware(deps.Config.AllowedOrigins))

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Accounts)
	api.POST("/auth/sign-up", authHandler.SignUp)
	api.POST("/auth/sign-in", authHandler.SignIn)
	api.POST("/auth/sign-out", authHandler.SignOut)

	authed := api.Group("")
	authed.Use(sessionAuthMiddleware(deps.Auth))

	authed.GET("/auth/me", authHandler.Me)
	authed.PUT("/auth/profile", authHandler.UpdateProfile)
	authed.PUT("/auth/instructions", authHandler.UpdateInstructions)

	subscriptionHandler := handlers.NewSubscriptionHandler(
		deps.Subscriptions,
		deps.Portal,
		deps.Config.Billing.AwaitTimeout,
		deps.Config.Billing.AwaitMaxTimeout,
	)
	authed.GET("/subscription/status", subscriptionHandler.Status)
	authed.GET("/subscription/await", subscriptionHandler.Await)
	authed.GET("/subscription/portal", subscriptionHandler.Portal)

	gated := authed.Group("")
	gated.Use(subscriptionMiddleware(deps.Config.Billing.RequireSubscription))

	documentHandler := handlers.NewDocumentHandler(deps.Documents)
	gated.POST("/documents", documentHandler.Create)
	gated.GET("/documents", documentHandler.List)
	gated.GET("/documents/:id", documentHandler.Get)
	gated.PUT("/documents/:id", documentHandler.Update)
	gated.DELETE("/documents/:id", documentHandler.Delete)
	gated.POST("/documents/:id/knowledge", documentHandler.AddKnowledge)
	gated.GET("/documents/:id/knowledge", documentHandler.ListKnowledge)
	gated.PUT("/knowledge/:id", documentHandler.UpdateKnowledge)
	gated.DELETE("/knowledge/:id", documentHandler.DeleteKnowledge)

	if deps.Usage != nil {
		usageHandler := handlers.NewUsageHandler(deps.Usage, nil)
		gated.GET("/ai/usage", usageHandler.Summary)
	}

	ai := gated.Group("/ai")
	ai.Use(aiRateLimitMiddleware(deps.Limiter, deps.Config.RateLimit))

	aiHandler := handlers.NewAIHandler(deps.Assistant, deps.Documents)
	ai.POST("/chat", aiHandler.Chat)
	ai.POST("/generate", aiHandler.Generate)
}
