package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/mentora/mentora-pay-api/api/swagger"
	"github.com/mentora/mentora-pay-api/internal/handler"
	"github.com/mentora/mentora-pay-api/internal/middleware"
	"github.com/mentora/mentora-pay-api/internal/models"
	"github.com/mentora/mentora-pay-api/internal/provider"
	"github.com/mentora/mentora-pay-api/internal/repository"
	"github.com/mentora/mentora-pay-api/internal/service"
	"github.com/mentora/mentora-pay-api/pkg/cache"
	"github.com/mentora/mentora-pay-api/pkg/config"
	"github.com/mentora/mentora-pay-api/pkg/database"
	"github.com/mentora/mentora-pay-api/pkg/logger"
	corsmiddleware "github.com/mentora/mentora-pay-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mentora/mentora-pay-api/pkg/middleware/requestid"
	"github.com/mentora/mentora-pay-api/pkg/storage"
)

// @title Mentora Pay API
// @version 0.1.0
// @description Payment and commission settlement engine for the Mentora marketplace
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rate limiting disabled", "error", err)
		redisClient = nil
	}

	paymentRepo := repository.NewPaymentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewMentorAssignmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	rateLimitStore := repository.NewRedisRateLimitStore(redisClient, logr)

	metricsService := service.NewMetricsService()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var notifier *service.NotificationService
	if cfg.Notifications.Enabled {
		notifier = service.NewNotificationService(
			&service.LogSender{Logger: logr},
			userRepo,
			metricsService,
			logr,
			service.NotificationOptions{
				Workers:    cfg.Notifications.WorkerConcurrency,
				BufferSize: cfg.Notifications.WorkerConcurrency * 4,
				MaxRetries: cfg.Notifications.WorkerRetries,
				RetryDelay: cfg.Notifications.RetryDelay,
			},
		)
		notifier.Start(ctx)
		defer notifier.Stop()
	}

	verifier := provider.NewVerifier(cfg.Payments.WebhookSecret, cfg.Payments.SignatureTolerance)
	settlementService := service.NewSettlementService(
		paymentRepo, enrollmentRepo, assignmentRepo, notifier,
		verifier, metricsService, logr,
		cfg.Payments.PlatformFeeRate, cfg.Payments.CurrencyPrecision,
	)

	authService := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "mentora-pay-api",
	})
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, paymentRepo, nil, logr, cfg.Payments.CurrencyPrecision)
	paymentService := service.NewPaymentService(paymentRepo, enrollmentRepo, assignmentRepo, nil, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, enrollmentRepo, nil, logr)

	var payoutService *service.PayoutService
	if cfg.Payouts.Enabled {
		statementStore, err := storage.NewLocalStorage(cfg.Payouts.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init payout storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Payouts.SignedURLSecret, cfg.Payouts.SignedURLTTL)
		payoutService = service.NewPayoutService(paymentRepo, statementStore, signer, service.PayoutConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Payouts.SignedURLTTL,
		}, logr, nil, nil)

		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := payoutService.CleanupExpired(); err != nil {
						logr.Sugar().Warnw("statement cleanup failed", "error", err)
					}
				}
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	metricsHandler := handler.NewMetricsHandler(metricsService, db, redisClient)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	webhookHandler := handler.NewWebhookHandler(settlementService, cfg.Payments.HandlerTimeout)
	webhookRoutes := r.Group("/webhooks")
	if cfg.RateLimit.Enabled {
		webhookRoutes.Use(middleware.RateLimit(rateLimitStore, middleware.RateLimitOptions{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
			Logger: logr,
		}))
	}
	webhookRoutes.POST("/payments", webhookHandler.HandlePaymentEvent)

	authHandler := handler.NewAuthHandler(authService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authorized := api.Group("")
	authorized.Use(middleware.JWT(authService))
	authorized.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleFinance)
	authorized.GET("/enrollments", staff, enrollmentHandler.List)
	authorized.GET("/enrollments/:id", staff, enrollmentHandler.Get)
	authorized.POST("/enrollments", staff, enrollmentHandler.Create)
	authorized.PUT("/enrollments/:id/status", middleware.RequireRoles(models.RoleAdmin), enrollmentHandler.UpdateStatus)

	authorized.GET("/payments", staff, paymentHandler.List)
	authorized.GET("/payments/:id", staff, paymentHandler.Get)
	authorized.POST("/payments", staff, paymentHandler.Create)

	admin := middleware.RequireRoles(models.RoleAdmin)
	authorized.GET("/assignments", staff, assignmentHandler.List)
	authorized.POST("/assignments", admin, assignmentHandler.Create)
	authorized.PUT("/assignments/:id/commission-rate", admin, assignmentHandler.UpdateCommissionRate)
	authorized.PUT("/assignments/:id/status", admin, assignmentHandler.UpdateStatus)

	if payoutService != nil {
		payoutHandler := handler.NewPayoutHandler(payoutService)
		mentorOrStaff := middleware.SelfOrRoles(models.RoleAdmin, models.RoleFinance)
		authorized.GET("/payouts/mentors/:mentorId", mentorOrStaff, payoutHandler.Summary)
		authorized.POST("/payouts/mentors/:mentorId/statements", staff, payoutHandler.GenerateStatement)
		// Download is authenticated by the signed token itself.
		api.GET("/payouts/statements/:token", payoutHandler.DownloadStatement)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
