// Package app wires configuration, storage, services, and HTTP routes into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/account"
	"github.com/inkwell-app/inkwell/internal/assistant"
	"github.com/inkwell-app/inkwell/internal/billing"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/documents"
	"github.com/inkwell-app/inkwell/internal/http/api/front"
	"github.com/inkwell-app/inkwell/internal/http/api/webhooks"
	"github.com/inkwell-app/inkwell/internal/logging"
	"github.com/inkwell-app/inkwell/internal/ratelimit"
	"github.com/inkwell-app/inkwell/internal/session"
	"github.com/inkwell-app/inkwell/internal/subscription"
	"github.com/inkwell-app/inkwell/internal/usage"
	"github.com/inkwell-app/inkwell/internal/webhook"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 15 * time.Second

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Server is the assembled HTTP handler and the resources it owns.
type Server struct {
	Engine  *gin.Engine
	limiter *ratelimit.Manager
}

// Close releases the resources held by the server.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.limiter.Close()
}

// NewServer builds the services and registers every route on a fresh gin engine.
func NewServer(cfg config.Config, conn *gorm.DB) (*Server, error) {
	if conn == nil {
		return nil, errors.New("app: nil db")
	}

	subs := subscription.NewService(conn, nil, cfg.Billing.OrderingGuard)
	ingress := webhook.NewIngress(subs, cfg.Billing.WebhookSecret, webhook.NewLedger(conn), nil)
	auth := session.NewAuthenticator(conn, cfg.Session.TTL, nil)
	auth.SetLinker(ingress)
	limiter := ratelimit.NewManager(cfg.RateLimit.Redis, nil, nil)
	recorder := usage.NewGormRecorder(conn, nil)
	ai := assistant.NewService(cfg.AI, nil)
	ai.SetUsageRecorder(recorder)

	engine := gin.New()
	engine.Use(gin.Recovery(), logging.GinLogger())

	front.RegisterFrontRoutes(engine, front.Deps{
		DB:            conn,
		Auth:          auth,
		Accounts:      account.NewService(conn, nil),
		Subscriptions: subs,
		Documents:     documents.NewStore(conn, nil),
		Assistant:     ai,
		Portal:        billing.NewPortalClient(cfg.Billing),
		Usage:         recorder,
		Limiter:       limiter,
		Config:        cfg,
	})
	webhooks.RegisterWebhookRoutes(engine, ingress, nil)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return &Server{Engine: engine, limiter: limiter}, nil
}

// RunServer loads configuration, migrates the database, and serves until ctx is canceled.
// port overrides the configured port when positive.
func RunServer(ctx context.Context, appCfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return errValidate
	}

	logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	if errPortal := cfg.Billing.ValidatePortal(); errPortal != nil {
		log.WithError(errPortal).Warn("customer portal disabled")
	}

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	gin.SetMode(gin.ReleaseMode)
	server, err := NewServer(cfg, conn)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := server.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting server on :%d with config=%s", cfg.Port, configPath)
		if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down server")
	if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}
